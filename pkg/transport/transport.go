package transport

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sort"
    "strings"
    "sync"
    "time"
)

var (
    // ErrUnknown is returned by Lookup for unregistered transport names.
    ErrUnknown = errors.New("transport: unknown transport")
    // ErrClosed is returned by streams and listeners after Close.
    ErrClosed = errors.New("transport: closed")
)

// Kind identifies how a link moves its messages.
type Kind int

const (
    KindUnknown Kind = iota
    // KindLocal hands message values over a channel without encoding.
    KindLocal
    // KindMem encodes messages and frames them over an in-process pipe.
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindLocal:
        return "local"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// ParseKind accepts the names used in dataflow descriptors. An empty name
// means local.
func ParseKind(s string) (Kind, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "", "local", "chan":
        return KindLocal, nil
    case "mem", "pipe":
        return KindMem, nil
    default:
        return KindUnknown, fmt.Errorf("%w: %q", ErrUnknown, s)
    }
}

// Stats snapshot for monitoring one stream.
type Stats struct {
    EstablishedAt time.Time
    LastSeen      time.Time
    FramesOut     uint64
    FramesIn      uint64
    BytesOut      uint64
    BytesIn       uint64
}

// Stream is a bidirectional frame stream.
// Exactly one reader and one writer goroutine are expected.
type Stream interface {
    // SendBytes sends one frame.
    SendBytes([]byte) error
    // RecvBytes returns the next frame. io.EOF reports an orderly close by the peer.
    RecvBytes() ([]byte, error)
    Stats() Stats
    Close() error
}

// Listener accepts inbound streams on a named address.
type Listener interface {
    // Accept blocks until an inbound stream is available or ctx is done.
    Accept(ctx context.Context) (Stream, error)
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// Transport dials and listens for streams of one Kind.
type Transport interface {
    Kind() Kind
    Listen(ctx context.Context, address string) (Listener, error)
    Dial(ctx context.Context, address string) (Stream, error)
}

// Registry maps kinds to transports.
type Registry struct {
    mu sync.RWMutex
    m  map[Kind]Transport
}

func NewRegistry(ts ...Transport) *Registry {
    r := &Registry{m: make(map[Kind]Transport)}
    for _, t := range ts { r.Register(t) }
    return r
}

func (r *Registry) Register(t Transport) {
    r.mu.Lock(); defer r.mu.Unlock()
    r.m[t.Kind()] = t
}

func (r *Registry) Lookup(k Kind) (Transport, error) {
    r.mu.RLock(); defer r.mu.RUnlock()
    t, ok := r.m[k]
    if !ok { return nil, fmt.Errorf("%w: %s", ErrUnknown, k) }
    return t, nil
}

// Kinds lists the registered kinds in ascending order.
func (r *Registry) Kinds() []Kind {
    r.mu.RLock(); defer r.mu.RUnlock()
    out := make([]Kind, 0, len(r.m))
    for k := range r.m { out = append(out, k) }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}
