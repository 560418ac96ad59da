package node

import (
    "sync"
    "testing"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
)

func TestLatchTracksSelectedPorts(t *testing.T) {
    l := NewLatch("Label")
    if _, ok := l.Read("Label"); ok { t.Fatalf("empty latch returned a value") }
    l.Update("Label", channel.NewMessage("x"))
    l.Update("Trigger", channel.NewMessage(1))
    l.Update("Label", channel.NewMessage("y"))

    if v, ok := Latched[string](l, "Label"); !ok || v != "y" { t.Fatalf("want y, got %q %v", v, ok) }
    if _, ok := l.Read("Trigger"); ok { t.Fatalf("Trigger is not latched") }
    if _, ok := Latched[int](l, "Label"); ok { t.Fatalf("type mismatch must report false") }
    if len(l.Snapshot()) != 1 { t.Fatalf("snapshot: %v", l.Snapshot()) }
}

func TestLatchAll(t *testing.T) {
    l := NewLatch(LatchAll)
    l.Update("a", channel.NewMessage(1))
    l.Update("b", channel.NewMessage(2))
    if !l.Tracks("anything") || len(l.Snapshot()) != 2 { t.Fatalf("LatchAll must track every port") }

    var nilLatch *Latch
    nilLatch.Update("a", channel.NewMessage(1))
    if _, ok := nilLatch.Read("a"); ok || len(nilLatch.Snapshot()) != 0 { t.Fatalf("nil latch must be empty") }
}

func TestGuardedConcurrentBranches(t *testing.T) {
    g := NewGuarded(0)
    var wg sync.WaitGroup
    for i := 0; i < 50; i++ {
        wg.Add(1)
        go func() { defer wg.Done(); g.With(func(v *int) { *v++ }) }()
    }
    wg.Wait()
    if g.Load() != 50 { t.Fatalf("want 50, got %d", g.Load()) }
    g.Store(7)
    if g.Load() != 7 { t.Fatalf("store lost") }
}
