package node

import "sync"

// Guarded wraps a value shared by concurrent branches of one iteration. Every
// access takes the lock for the duration of fn only; fn must not block on a
// channel or timer.
type Guarded[T any] struct {
    mu sync.Mutex
    v  T
}

// NewGuarded wraps v.
func NewGuarded[T any](v T) *Guarded[T] { return &Guarded[T]{v: v} }

// With runs fn with exclusive access to the value.
func (g *Guarded[T]) With(fn func(v *T)) {
    g.mu.Lock(); defer g.mu.Unlock()
    fn(&g.v)
}

// Load returns a copy of the value.
func (g *Guarded[T]) Load() T {
    g.mu.Lock(); defer g.mu.Unlock()
    return g.v
}

// Store replaces the value.
func (g *Guarded[T]) Store(v T) {
    g.mu.Lock(); g.v = v; g.mu.Unlock()
}
