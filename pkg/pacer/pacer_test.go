package pacer

import (
    "context"
    "errors"
    "testing"
    "time"
)

func TestAllowRefills(t *testing.T) {
    now := time.Unix(0, 0)
    b := NewBucket(10, 2)
    b.now = func() time.Time { return now }

    if ok, _ := b.Allow(2); !ok { t.Fatalf("full bucket refused burst") }
    ok, wait := b.Allow(1)
    if ok || wait != 100*time.Millisecond { t.Fatalf("ok=%v wait=%v, want refusal for 100ms", ok, wait) }
    now = now.Add(100 * time.Millisecond)
    if ok, _ := b.Allow(1); !ok { t.Fatalf("token not refilled") }
    now = now.Add(time.Hour)
    if ok, _ := b.Allow(3); ok { t.Fatalf("refill exceeded burst") }
}

func TestWait(t *testing.T) {
    b := NewBucket(100, 1)
    start := time.Now()
    for i := 0; i < 3; i++ {
        if err := b.Wait(context.Background(), 1); err != nil { t.Fatal(err) }
    }
    if el := time.Since(start); el < 15*time.Millisecond { t.Fatalf("3 tokens at 100/s took only %v", el) }

    slow := NewBucket(1, 1)
    _ = slow.Wait(context.Background(), 1)
    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    if err := slow.Wait(ctx, 1); !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("want deadline, got %v", err) }

    var none *Bucket
    if err := none.Wait(context.Background(), 5); err != nil { t.Fatal(err) }
}
