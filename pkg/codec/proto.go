package codec

import (
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
    "google.golang.org/protobuf/types/known/wrapperspb"
)

var (
    protoOut = proto.MarshalOptions{Deterministic: true}
    protoIn  = proto.UnmarshalOptions{DiscardUnknown: true}
)

// protoCodec carries port payloads as protobuf. Messages (the pb.* type
// tags) are encoded as they are; the plain tags (string, int64, float64,
// bool, bytes) and string-keyed maps travel inside the matching well-known
// wrapper, so a port typed int64 can be linked over protobuf unchanged.
type protoCodec struct{}

// Proto returns the codec registered as "protobuf". Encoding is
// deterministic.
func Proto() Codec { return protoCodec{} }

func (protoCodec) ContentType() string { return "application/x-protobuf" }

func (protoCodec) Marshal(v any) ([]byte, error) {
    m, err := wrap(v)
    if err != nil { return nil, err }
    return protoOut.Marshal(m)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
    switch t := v.(type) {
    case proto.Message:
        return protoIn.Unmarshal(data, t)
    case *string:
        w := &wrapperspb.StringValue{}
        if err := protoIn.Unmarshal(data, w); err != nil { return err }
        *t = w.GetValue()
    case *int64:
        w := &wrapperspb.Int64Value{}
        if err := protoIn.Unmarshal(data, w); err != nil { return err }
        *t = w.GetValue()
    case *float64:
        w := &wrapperspb.DoubleValue{}
        if err := protoIn.Unmarshal(data, w); err != nil { return err }
        *t = w.GetValue()
    case *bool:
        w := &wrapperspb.BoolValue{}
        if err := protoIn.Unmarshal(data, w); err != nil { return err }
        *t = w.GetValue()
    case *[]byte:
        w := &wrapperspb.BytesValue{}
        if err := protoIn.Unmarshal(data, w); err != nil { return err }
        *t = w.GetValue()
    default:
        // the wire carries no type; an untyped port cannot pick the wrapper
        return fmt.Errorf("protobuf: cannot decode into %T", v)
    }
    return nil
}

// wrap picks the wire message for a payload value.
func wrap(v any) (proto.Message, error) {
    switch x := v.(type) {
    case proto.Message:
        return x, nil
    case string:
        return wrapperspb.String(x), nil
    case int64:
        return wrapperspb.Int64(x), nil
    case int:
        return wrapperspb.Int64(int64(x)), nil
    case float64:
        return wrapperspb.Double(x), nil
    case bool:
        return wrapperspb.Bool(x), nil
    case []byte:
        return wrapperspb.Bytes(x), nil
    case map[string]any:
        return structpb.NewStruct(x)
    default:
        return nil, fmt.Errorf("protobuf: no wire message for %T", v)
    }
}
