package node

import (
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
)

// LatchAll latches every input port.
const LatchAll = "*"

// Latch caches the last message seen on selected input ports. Entries are
// created on the first message and overwritten on every later one, whichever
// port triggered the cycle.
type Latch struct {
    all     bool
    ports   map[string]struct{}
    entries *Guarded[map[string]channel.Message]
}

// NewLatch latches the named ports, or all of them when names contains
// LatchAll.
func NewLatch(names ...string) *Latch {
    l := &Latch{ports: make(map[string]struct{}, len(names)), entries: NewGuarded(make(map[string]channel.Message))}
    for _, n := range names {
        if n == LatchAll { l.all = true }
        l.ports[n] = struct{}{}
    }
    return l
}

// Tracks reports whether port is latched.
func (l *Latch) Tracks(port string) bool {
    if l == nil { return false }
    if l.all { return true }
    _, ok := l.ports[port]
    return ok
}

// Update overwrites the cached value for port. Ports that are not latched are
// ignored.
func (l *Latch) Update(port string, m channel.Message) {
    if !l.Tracks(port) { return }
    l.entries.With(func(e *map[string]channel.Message) { (*e)[port] = m })
}

// Read returns the last message on port, or false if none ever arrived.
func (l *Latch) Read(port string) (channel.Message, bool) {
    if l == nil { return channel.Message{}, false }
    var (
        m  channel.Message
        ok bool
    )
    l.entries.With(func(e *map[string]channel.Message) { m, ok = (*e)[port] })
    return m, ok
}

// Snapshot copies the current entries.
func (l *Latch) Snapshot() map[string]channel.Message {
    out := make(map[string]channel.Message)
    if l == nil { return out }
    l.entries.With(func(e *map[string]channel.Message) {
        for k, v := range *e { out[k] = v }
    })
    return out
}

// Latched extracts the typed payload latched on port. It returns the zero
// value and false when nothing was latched or the payload has another type.
func Latched[T any](l *Latch, port string) (T, bool) {
    var zero T
    m, ok := l.Read(port)
    if !ok { return zero, false }
    v, ok := m.Data.(T)
    return v, ok
}
