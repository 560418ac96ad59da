// Package pacer shapes message rates with a token bucket.
package pacer

import (
    "context"
    "sync"
    "time"
)

// Bucket is a token bucket refilled at rate tokens per second up to burst.
type Bucket struct {
    mu     sync.Mutex
    burst  int64
    tokens int64
    rate   int64 // tokens per second
    last   time.Time
    now    func() time.Time
}

// NewBucket returns a full bucket. A burst <= 0 defaults to rate.
func NewBucket(ratePerSec, burst int64) *Bucket {
    if burst <= 0 { burst = ratePerSec }
    return &Bucket{burst: burst, tokens: burst, rate: ratePerSec, now: time.Now}
}

// Allow tries to consume n tokens. When short it reports how long to wait
// before n tokens are available.
func (b *Bucket) Allow(n int64) (ok bool, wait time.Duration) {
    b.mu.Lock(); defer b.mu.Unlock()
    now := b.now()
    if b.last.IsZero() { b.last = now }
    if dt := now.Sub(b.last); dt > 0 {
        if add := (b.rate * dt.Nanoseconds()) / int64(time.Second); add > 0 {
            b.tokens = min(b.tokens+add, b.burst)
            b.last = now
        }
    }
    if b.tokens >= n {
        b.tokens -= n
        return true, 0
    }
    need := n - b.tokens
    return false, time.Duration((need * int64(time.Second)) / b.rate)
}

// Wait blocks until n tokens were consumed or ctx is done. A nil bucket
// never blocks.
func (b *Bucket) Wait(ctx context.Context, n int64) error {
    if b == nil || b.rate <= 0 { return nil }
    n = min(n, b.burst)
    for {
        ok, wait := b.Allow(n)
        if ok { return nil }
        t := time.NewTimer(max(wait, time.Millisecond))
        select {
        case <-ctx.Done():
            t.Stop()
            return ctx.Err()
        case <-t.C:
        }
    }
}
