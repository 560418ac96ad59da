package dataflow

import (
    "context"
    "errors"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
)

// fanout copies every message of rx to each downstream sender. Closed
// downstreams are dropped; when none is left rx is closed so the producer
// sees it. A drained rx closes every downstream.
func fanout(rx *channel.Receiver, downstream []*channel.Sender) worker {
    return func(ctx context.Context) error {
        live := append([]*channel.Sender(nil), downstream...)
        defer rx.Close()
        defer func() {
            for _, tx := range live { tx.Close() }
        }()
        for {
            m, err := rx.Recv(ctx)
            if errors.Is(err, channel.ErrClosed) { return nil }
            if err != nil { return ignoreCancel(err) }
            kept := live[:0]
            for _, tx := range live {
                if err := tx.Send(ctx, m); err != nil {
                    if errors.Is(err, channel.ErrClosed) { continue }
                    return ignoreCancel(err)
                }
                kept = append(kept, tx)
            }
            live = kept
            if len(live) == 0 {
                rx.Close()
                return nil
            }
        }
    }
}

// drain discards everything sent on an unlinked output.
func drain(rx *channel.Receiver) worker {
    return func(ctx context.Context) error {
        defer rx.Close()
        for {
            if _, err := rx.Recv(ctx); err != nil { return ignoreCancel(err) }
        }
    }
}

func ignoreCancel(err error) error {
    if errors.Is(err, context.Canceled) || errors.Is(err, channel.ErrClosed) { return nil }
    return err
}
