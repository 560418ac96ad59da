package link

import (
    "context"
    "errors"
    "fmt"
    "testing"
    "time"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"
    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/wrapperspb"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/pacer"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/transport/mem"
)

type bridge struct {
    prodTx *channel.Sender
    consRx *channel.Receiver
    done   chan error
}

func startLink(t *testing.T, opts Options) (*Link, *bridge) {
    t.Helper()
    l, err := New(opts)
    if err != nil { t.Fatal(err) }
    prodTx, linkRx := channel.New(4)
    linkTx, consRx := channel.New(4)
    b := &bridge{prodTx: prodTx, consRx: consRx, done: make(chan error, 1)}
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)
    go func() { b.done <- l.Run(ctx, mem.New(), linkRx, linkTx) }()
    return l, b
}

func (b *bridge) wait(t *testing.T) error {
    t.Helper()
    select {
    case err := <-b.done:
        return err
    case <-time.After(2 * time.Second):
        t.Fatalf("link did not stop")
        return nil
    }
}

func TestLinkPreservesOrderAndValues(t *testing.T) {
    c, err := codec.CBOR()
    if err != nil { t.Fatal(err) }
    l, b := startLink(t, Options{Name: "fizz.Str->buzz.Str", Codec: c, Type: codec.TypeInt64})
    ctx := context.Background()

    ts := time.Unix(1700000000, 42)
    go func() {
        for i := int64(1); i <= 50; i++ {
            _ = b.prodTx.Send(ctx, channel.Message{Data: i, Timestamp: ts})
        }
        b.prodTx.Close()
    }()
    for want := int64(1); want <= 50; want++ {
        m, err := b.consRx.Recv(ctx)
        if err != nil { t.Fatalf("recv %d: %v", want, err) }
        if m.Data != want { t.Fatalf("got %v (%T), want %d", m.Data, m.Data, want) }
        if !m.Timestamp.Equal(ts) { t.Fatalf("timestamp not preserved: %v", m.Timestamp) }
    }
    if _, err := b.consRx.Recv(ctx); !errors.Is(err, channel.ErrClosed) { t.Fatalf("want ErrClosed after drain, got %v", err) }
    if err := b.wait(t); err != nil { t.Fatal(err) }
    if st := l.Stats(); st.Sent != 50 || st.Received != 50 { t.Fatalf("stats: %+v", st) }
}

func TestLinkProtoPayloads(t *testing.T) {
    _, b := startLink(t, Options{Codec: codec.Proto(), Type: codec.TypePBString})
    ctx := context.Background()
    if err := b.prodTx.Send(ctx, channel.NewMessage(wrapperspb.String("hello"))); err != nil { t.Fatal(err) }
    m, err := b.consRx.Recv(ctx)
    if err != nil { t.Fatal(err) }
    if !proto.Equal(m.Data.(proto.Message), wrapperspb.String("hello")) { t.Fatalf("got %v", m.Data) }
}

func TestLinkProtoPlainInt(t *testing.T) {
    _, b := startLink(t, Options{Codec: codec.Proto(), Type: codec.TypeInt64})
    ctx := context.Background()
    if err := b.prodTx.Send(ctx, channel.NewMessage(int64(6))); err != nil { t.Fatal(err) }
    m, err := b.consRx.Recv(ctx)
    if err != nil { t.Fatal(err) }
    if m.Data != int64(6) { t.Fatalf("got %#v", m.Data) }
}

func TestLinkDropsUndecodable(t *testing.T) {
    core, logs := observer.New(zapcore.WarnLevel)
    l, b := startLink(t, Options{Codec: codec.JSON(), Type: codec.TypeInt64, Log: zap.New(core)})
    ctx := context.Background()
    _ = b.prodTx.Send(ctx, channel.NewMessage("seven"))
    _ = b.prodTx.Send(ctx, channel.NewMessage(int64(7)))
    m, err := b.consRx.Recv(ctx)
    if err != nil { t.Fatal(err) }
    if m.Data != int64(7) { t.Fatalf("got %v", m.Data) }
    if l.Stats().Dropped != 1 || logs.FilterMessage("decode failed, message dropped").Len() != 1 {
        t.Fatalf("drop not reported: %+v %v", l.Stats(), logs.All())
    }
}

func TestConsumerCloseReachesProducer(t *testing.T) {
    _, b := startLink(t, Options{Codec: codec.JSON()})
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    b.consRx.Close()
    var err error
    for i := 0; i < 100 && err == nil; i++ {
        err = b.prodTx.Send(ctx, channel.NewMessage(fmt.Sprint(i)))
    }
    if !errors.Is(err, channel.ErrClosed) { t.Fatalf("producer never saw the close: %v", err) }
    if err := b.wait(t); err != nil { t.Fatal(err) }
}

func TestLinkPacing(t *testing.T) {
    _, b := startLink(t, Options{Codec: codec.JSON(), Type: codec.TypeFloat64, Pacer: pacer.NewBucket(100, 1)})
    ctx := context.Background()
    start := time.Now()
    go func() {
        for i := 0; i < 4; i++ { _ = b.prodTx.Send(ctx, channel.NewMessage(float64(i))) }
    }()
    for i := 0; i < 4; i++ {
        if _, err := b.consRx.Recv(ctx); err != nil { t.Fatal(err) }
    }
    if el := time.Since(start); el < 25*time.Millisecond { t.Fatalf("4 frames at 100/s took %v", el) }
}

func TestNewRejectsUnknownType(t *testing.T) {
    if _, err := New(Options{Codec: codec.JSON(), Type: "pb.Nope"}); err == nil { t.Fatalf("unknown type accepted") }
    if _, err := New(Options{}); err == nil { t.Fatalf("missing codec accepted") }
    if _, err := New(Options{Codec: codec.Proto(), Type: codec.TypeAny}); err == nil { t.Fatalf("untyped protobuf link accepted") }
}
