package nodes

import (
    "fmt"
    "strings"

    "github.com/spf13/cast"
    "google.golang.org/protobuf/types/known/structpb"
    "google.golang.org/protobuf/types/known/wrapperspb"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
)

// unwrap turns protobuf wrappers into plain Go values.
func unwrap(v any) any {
    switch x := v.(type) {
    case *wrapperspb.StringValue:
        return x.GetValue()
    case *wrapperspb.Int64Value:
        return x.GetValue()
    case *wrapperspb.Int32Value:
        return x.GetValue()
    case *wrapperspb.UInt64Value:
        return x.GetValue()
    case *wrapperspb.DoubleValue:
        return x.GetValue()
    case *wrapperspb.FloatValue:
        return x.GetValue()
    case *wrapperspb.BoolValue:
        return x.GetValue()
    case *wrapperspb.BytesValue:
        return x.GetValue()
    case *structpb.Value:
        return x.AsInterface()
    case *structpb.Struct:
        return x.AsMap()
    }
    return v
}

// text reads a message payload as a string. Byte payloads are taken as UTF-8.
func text(m channel.Message) (string, error) {
    switch v := unwrap(m.Data).(type) {
    case string:
        return v, nil
    case []byte:
        return string(v), nil
    case fmt.Stringer:
        return v.String(), nil
    default:
        s, err := cast.ToStringE(v)
        if err != nil { return "", fmt.Errorf("%w: %v", port.ErrPayload, err) }
        return s, nil
    }
}

// integer reads a message payload as an int64.
func integer(m channel.Message) (int64, error) {
    v := unwrap(m.Data)
    if b, ok := v.([]byte); ok { v = strings.TrimSpace(string(b)) }
    n, err := cast.ToInt64E(v)
    if err != nil { return 0, fmt.Errorf("%w: %v", port.ErrPayload, err) }
    return n, nil
}

// render formats any payload for human-readable sinks.
func render(v any) string {
    switch x := unwrap(v).(type) {
    case []byte:
        return string(x)
    case string:
        return x
    default:
        return fmt.Sprintf("%v", x)
    }
}
