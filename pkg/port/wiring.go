package port

import (
    "fmt"
    "sync"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
)

type wiredIn struct {
    typ   string
    rx    *channel.Receiver
    taken bool
}

type wiredOut struct {
    typ   string
    tx    *channel.Sender
    taken bool
}

// Wiring is an in-memory Provider. The host registers endpoints under port
// names; a node takes each endpoint at most once.
type Wiring struct {
    mu      sync.Mutex
    inputs  map[string]*wiredIn
    outputs map[string]*wiredOut
}

func NewWiring() *Wiring {
    return &Wiring{inputs: make(map[string]*wiredIn), outputs: make(map[string]*wiredOut)}
}

// AddInput registers the receiving endpoint for input port name.
func (w *Wiring) AddInput(name, typ string, rx *channel.Receiver) error {
    w.mu.Lock(); defer w.mu.Unlock()
    if _, dup := w.inputs[name]; dup { return fmt.Errorf("%w: input %q already wired", ErrDuplicate, name) }
    w.inputs[name] = &wiredIn{typ: typ, rx: rx}
    return nil
}

// AddOutput registers the sending endpoint for output port name.
func (w *Wiring) AddOutput(name, typ string, tx *channel.Sender) error {
    w.mu.Lock(); defer w.mu.Unlock()
    if _, dup := w.outputs[name]; dup { return fmt.Errorf("%w: output %q already wired", ErrDuplicate, name) }
    w.outputs[name] = &wiredOut{typ: typ, tx: tx}
    return nil
}

func (w *Wiring) Input(name, typ string) (*channel.Receiver, error) {
    w.mu.Lock(); defer w.mu.Unlock()
    e := w.inputs[name]
    if e == nil || e.taken { return nil, fmt.Errorf("%w: input %q", ErrNotFound, name) }
    if !TypesMatch(typ, e.typ) {
        return nil, fmt.Errorf("%w: input %q declared %s, wired %s", ErrTypeMismatch, name, typ, e.typ)
    }
    e.taken = true
    return e.rx, nil
}

func (w *Wiring) Output(name, typ string) (*channel.Sender, error) {
    w.mu.Lock(); defer w.mu.Unlock()
    e := w.outputs[name]
    if e == nil || e.taken { return nil, fmt.Errorf("%w: output %q", ErrNotFound, name) }
    if !TypesMatch(typ, e.typ) {
        return nil, fmt.Errorf("%w: output %q declared %s, wired %s", ErrTypeMismatch, name, typ, e.typ)
    }
    e.taken = true
    return e.tx, nil
}
