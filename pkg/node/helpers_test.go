package node

import (
    "context"
    "testing"
    "time"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
)

// harness wires every declared port of a node to a channel owned by the test.
type harness struct {
    w   *port.Wiring
    in  map[string]*channel.Sender
    out map[string]*channel.Receiver
}

func newHarness(t *testing.T, ports []port.Port) *harness {
    t.Helper()
    h := &harness{w: port.NewWiring(), in: map[string]*channel.Sender{}, out: map[string]*channel.Receiver{}}
    for _, p := range ports {
        tx, rx := channel.New(8)
        if p.Direction == port.Input {
            if err := h.w.AddInput(p.Name, p.Type, rx); err != nil { t.Fatalf("wire %s: %v", p.Name, err) }
            h.in[p.Name] = tx
        } else {
            if err := h.w.AddOutput(p.Name, p.Type, tx); err != nil { t.Fatalf("wire %s: %v", p.Name, err) }
            h.out[p.Name] = rx
        }
    }
    return h
}

func (h *harness) send(t *testing.T, name string, v any) {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    if err := h.in[name].Send(ctx, channel.NewMessage(v)); err != nil { t.Fatalf("send %s: %v", name, err) }
}

func (h *harness) recv(t *testing.T, name string) any {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    m, err := h.out[name].Recv(ctx)
    if err != nil { t.Fatalf("recv %s: %v", name, err) }
    return m.Data
}

func (h *harness) expectNone(t *testing.T, name string, d time.Duration) {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), d)
    defer cancel()
    if m, err := h.out[name].Recv(ctx); err == nil { t.Fatalf("unexpected message on %s: %v", name, m.Data) }
}

func startNode[S any](t *testing.T, desc Descriptor, impl Node[S], h *harness, opts ...Option) *Lifecycle[S] {
    t.Helper()
    lc, err := New(desc, impl, nil, h.w, opts...)
    if err != nil { t.Fatalf("new: %v", err) }
    if err := lc.Start(context.Background()); err != nil { t.Fatalf("start: %v", err) }
    t.Cleanup(func() {
        ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = lc.Stop(ctx)
    })
    return lc
}

func waitDone(t *testing.T, i Instance) {
    t.Helper()
    select {
    case <-i.Done():
    case <-time.After(2 * time.Second):
        t.Fatalf("node %s did not terminate (phase %s)", i.Name(), i.Phase())
    }
}
