package port

import (
    "errors"
    "fmt"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
)

// ErrPayload is returned when a message does not carry the expected type.
var ErrPayload = errors.New("port: unexpected payload")

// Value extracts a T from m. Native values are returned as is; encoded bytes
// are decoded with c. A nil codec only accepts native values.
func Value[T any](m channel.Message, c codec.Codec) (T, error) {
    var zero T
    if v, ok := m.Data.(T); ok { return v, nil }
    if b, ok := m.Data.([]byte); ok && c != nil {
        var out T
        if err := c.Unmarshal(b, &out); err != nil {
            return zero, fmt.Errorf("%w: decode %T: %v", ErrPayload, zero, err)
        }
        return out, nil
    }
    return zero, fmt.Errorf("%w: want %T, got %T", ErrPayload, zero, m.Data)
}
