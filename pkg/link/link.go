// Package link carries messages between an output endpoint and an input
// endpoint through a transport stream. Payloads are encoded with a codec on
// the way out and decoded into the declared port type on the way in.
package link

import (
    "context"
    "errors"
    "fmt"
    "io"
    "sync/atomic"
    "time"

    cbor "github.com/fxamacker/cbor/v2"
    "github.com/google/uuid"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/pacer"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/transport"
)

// frame is what travels on the stream. Body is encoded with the link codec.
type frame struct {
    ID   [16]byte `cbor:"1,keyasint"`
    TS   int64    `cbor:"2,keyasint"`
    Body []byte   `cbor:"3,keyasint"`
}

// Options configure one link.
type Options struct {
    Name  string       // listener address, also used in logs
    Codec codec.Codec  // payload codec (required)
    Types *codec.Types // decodes into the consumer port's type; nil means untyped
    Type  string       // consumer port type tag
    Pacer *pacer.Bucket
    Log   *zap.Logger
}

// Stats counts frames handled by a link.
type Stats struct {
    Sent, Received, Dropped uint64
}

// Link is one encoded hop between two ports.
type Link struct {
    opts Options
    log  *zap.Logger

    sent, received, dropped atomic.Uint64
}

// New validates opts. The payload type must be known to opts.Types.
func New(opts Options) (*Link, error) {
    if opts.Codec == nil { return nil, errors.New("link: codec required") }
    if opts.Name == "" { opts.Name = "link-" + uuid.NewString() }
    if opts.Types == nil { opts.Types = codec.NewTypes() }
    if !opts.Types.Known(opts.Type) { return nil, fmt.Errorf("link %s: unknown payload type %q", opts.Name, opts.Type) }
    if opts.Codec.ContentType() == codec.Proto().ContentType() && (opts.Type == "" || opts.Type == codec.TypeAny) {
        return nil, fmt.Errorf("link %s: protobuf needs a typed consumer port", opts.Name)
    }
    log := opts.Log
    if log == nil { log = zap.L() }
    return &Link{opts: opts, log: log.With(zap.String("link", opts.Name), zap.String("codec", opts.Codec.ContentType()))}, nil
}

func (l *Link) Name() string { return l.opts.Name }

func (l *Link) Stats() Stats {
    return Stats{Sent: l.sent.Load(), Received: l.received.Load(), Dropped: l.dropped.Load()}
}

// Run bridges in to out over tr until in is drained and closed, out is
// closed by its consumer, or ctx is cancelled. Closing propagates: a drained
// producer closes out, a gone consumer closes in.
func (l *Link) Run(ctx context.Context, tr transport.Transport, in *channel.Receiver, out *channel.Sender) error {
    // whatever ends the link, neither endpoint may stay blocked on it
    defer out.Close()
    defer in.Close()
    ln, err := tr.Listen(ctx, l.opts.Name)
    if err != nil { return fmt.Errorf("link %s: listen: %w", l.opts.Name, err) }
    defer ln.Close()

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        st, err := ln.Accept(gctx)
        if err != nil {
            out.Close()
            return fmt.Errorf("accept: %w", err)
        }
        return l.receive(gctx, st, out, in)
    })
    tx, err := tr.Dial(gctx, l.opts.Name)
    if err != nil {
        in.Close()
        _ = ln.Close()
        _ = g.Wait()
        return fmt.Errorf("link %s: dial: %w", l.opts.Name, err)
    }
    // closing the dialled end unblocks the receiving half with EOF
    stop := context.AfterFunc(gctx, func() { _ = tx.Close() })
    defer stop()
    g.Go(func() error { return l.send(gctx, tx, in) })
    err = g.Wait()
    l.log.Debug("link stopped", zap.Uint64("sent", l.sent.Load()), zap.Uint64("received", l.received.Load()))
    if err != nil && !errors.Is(err, context.Canceled) { return fmt.Errorf("link %s: %w", l.opts.Name, err) }
    return nil
}

// send drains in onto the stream. It closes the stream when in is done.
func (l *Link) send(ctx context.Context, st transport.Stream, in *channel.Receiver) error {
    defer st.Close()
    for {
        m, err := in.Recv(ctx)
        if errors.Is(err, channel.ErrClosed) { return nil }
        if err != nil { return err }
        body, err := l.opts.Codec.Marshal(m.Data)
        if err != nil {
            l.dropped.Add(1)
            l.log.Warn("encode failed, message dropped", zap.Error(err), zap.String("type", fmt.Sprintf("%T", m.Data)))
            continue
        }
        f := frame{ID: uuid.New(), TS: m.Timestamp.UnixNano(), Body: body}
        b, err := cbor.Marshal(f)
        if err != nil { return fmt.Errorf("frame: %w", err) }
        if err := l.opts.Pacer.Wait(ctx, 1); err != nil { return err }
        if err := st.SendBytes(b); err != nil {
            // the receiving half is gone; tell the producer
            in.Close()
            if errors.Is(err, transport.ErrClosed) || errors.Is(err, io.EOF) { return nil }
            return fmt.Errorf("send: %w", err)
        }
        l.sent.Add(1)
        if ce := l.log.Check(zap.DebugLevel, "frame sent"); ce != nil {
            ce.Write(zap.String("id", uuid.UUID(f.ID).String()), zap.Int("bytes", len(body)))
        }
    }
}

// receive decodes frames into out. A closed consumer closes the stream and in.
func (l *Link) receive(ctx context.Context, st transport.Stream, out *channel.Sender, in *channel.Receiver) error {
    defer out.Close()
    defer st.Close()
    for {
        b, err := st.RecvBytes()
        if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) { return nil }
        if err != nil { return fmt.Errorf("recv: %w", err) }
        var f frame
        if err := cbor.Unmarshal(b, &f); err != nil {
            l.dropped.Add(1)
            l.log.Warn("malformed frame dropped", zap.Error(err))
            continue
        }
        v, err := l.opts.Types.Decode(l.opts.Codec, l.opts.Type, f.Body)
        if err != nil {
            l.dropped.Add(1)
            l.log.Warn("decode failed, message dropped", zap.Error(err), zap.String("id", uuid.UUID(f.ID).String()))
            continue
        }
        if err := out.Send(ctx, channel.Message{Data: v, Timestamp: time.Unix(0, f.TS)}); err != nil {
            _ = st.Close()
            in.Close()
            if errors.Is(err, channel.ErrClosed) { return nil }
            return err
        }
        l.received.Add(1)
    }
}
