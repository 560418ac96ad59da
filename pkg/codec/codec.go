// Package codec provides the pluggable payload codecs used where a message
// leaves the process boundary of a node (encoded links, byte payloads).
package codec

import (
    "fmt"
    "sort"
    "strings"
    "sync"
)

// Codec marshals typed payloads. Implementations should be deterministic so
// that two nodes exchanging the same value produce identical bytes.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps content types and short aliases ("json", "cbor", "proto") to
// codecs.
type Registry struct {
    mu     sync.RWMutex
    byType map[string]Codec
}

// NewRegistry constructs a registry preloaded with JSON, CBOR and Protobuf.
func NewRegistry() (*Registry, error) {
    r := &Registry{byType: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(Proto())
    c, err := CBOR()
    if err != nil { return nil, fmt.Errorf("codec: init cbor: %w", err) }
    r.Register(c)
    return r, nil
}

// Register adds a codec under its content type and its short alias.
func (r *Registry) Register(c Codec) {
    r.mu.Lock(); defer r.mu.Unlock()
    r.byType[c.ContentType()] = c
    r.byType[alias(c.ContentType())] = c
}

// Get returns a codec by content type or alias, or nil.
func (r *Registry) Get(name string) Codec {
    r.mu.RLock(); defer r.mu.RUnlock()
    return r.byType[strings.ToLower(strings.TrimSpace(name))]
}

// Lookup is Get with an error for unknown names.
func (r *Registry) Lookup(name string) (Codec, error) {
    if c := r.Get(name); c != nil { return c, nil }
    return nil, fmt.Errorf("codec: unknown codec %q (have %s)", name, strings.Join(r.names(), ", "))
}

func (r *Registry) names() []string {
    r.mu.RLock(); defer r.mu.RUnlock()
    out := make([]string, 0, len(r.byType))
    for k := range r.byType { out = append(out, k) }
    sort.Strings(out)
    return out
}

// alias turns "application/x-protobuf" into "protobuf" and "application/cbor"
// into "cbor".
func alias(contentType string) string {
    s := contentType
    if i := strings.LastIndex(s, "/"); i >= 0 { s = s[i+1:] }
    return strings.TrimPrefix(s, "x-")
}
