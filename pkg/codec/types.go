package codec

import (
    "fmt"
    "reflect"
    "sync"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
    "google.golang.org/protobuf/types/known/wrapperspb"
)

// Payload type tags understood by the default type table. Port declarations
// carry one of these (or a custom registered tag).
const (
    TypeAny      = "any"
    TypeBytes    = "bytes"
    TypeString   = "string"
    TypeInt64    = "int64"
    TypeFloat64  = "float64"
    TypeBool     = "bool"
    TypePBInt64  = "pb.Int64"
    TypePBString = "pb.String"
    TypePBStruct = "pb.Struct"
)

// Types maps payload type tags to constructors of a pointer to a zero value,
// which is what Unmarshal needs to decode bytes back into the declared type.
type Types struct {
    mu    sync.RWMutex
    byTag map[string]func() any
}

// NewTypes returns a table preloaded with the built-in tags.
func NewTypes() *Types {
    t := &Types{byTag: make(map[string]func() any)}
    t.Register(TypeBytes, func() any { return new([]byte) })
    t.Register(TypeString, func() any { return new(string) })
    t.Register(TypeInt64, func() any { return new(int64) })
    t.Register(TypeFloat64, func() any { return new(float64) })
    t.Register(TypeBool, func() any { return new(bool) })
    t.Register(TypePBInt64, func() any { return &wrapperspb.Int64Value{} })
    t.Register(TypePBString, func() any { return &wrapperspb.StringValue{} })
    t.Register(TypePBStruct, func() any { return &structpb.Struct{} })
    return t
}

// Register adds or replaces a tag.
func (t *Types) Register(tag string, newFn func() any) {
    t.mu.Lock(); t.byTag[tag] = newFn; t.mu.Unlock()
}

// Known reports whether tag is registered. TypeAny is always known.
func (t *Types) Known(tag string) bool {
    if tag == TypeAny || tag == "" { return true }
    t.mu.RLock(); defer t.mu.RUnlock()
    _, ok := t.byTag[tag]
    return ok
}

// Decode unmarshals data into a fresh value of the tagged type. Plain Go
// types are returned by value, protobuf messages as pointers.
func (t *Types) Decode(c Codec, tag string, data []byte) (any, error) {
    if tag == TypeAny || tag == "" {
        var v any
        if err := c.Unmarshal(data, &v); err != nil { return nil, err }
        return v, nil
    }
    t.mu.RLock(); newFn := t.byTag[tag]; t.mu.RUnlock()
    if newFn == nil { return nil, fmt.Errorf("codec: unknown payload type %q", tag) }
    ptr := newFn()
    if err := c.Unmarshal(data, ptr); err != nil { return nil, fmt.Errorf("codec: decode %s: %w", tag, err) }
    if _, ok := ptr.(proto.Message); ok { return ptr, nil }
    return reflect.ValueOf(ptr).Elem().Interface(), nil
}
