package node

import (
    "context"
    "fmt"
    "time"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
)

// Kind is the shape of a node.
type Kind int

const (
    Operator Kind = iota
    Source
    Sink
)

func (k Kind) String() string {
    switch k {
    case Source:
        return "source"
    case Sink:
        return "sink"
    default:
        return "operator"
    }
}

// Descriptor is the static declaration of a node instance.
type Descriptor struct {
    Name   string
    Kind   Kind
    Ports  []port.Port
    Policy Policy
    // Latch lists the input ports whose last value is cached across cycles;
    // LatchAll caches every input.
    Latch []string
    // Period, when set, runs a timeout cycle whenever no input fires before
    // the next period boundary. For a source it paces every cycle.
    Period time.Duration
}

func (d Descriptor) inputs() []port.Port  { return d.filter(port.Input) }
func (d Descriptor) outputs() []port.Port { return d.filter(port.Output) }

func (d Descriptor) filter(dir port.Direction) []port.Port {
    var out []port.Port
    for _, p := range d.Ports {
        if p.Direction == dir { out = append(out, p) }
    }
    return out
}

func (d Descriptor) validate() error {
    if d.Name == "" { return fmt.Errorf("%w: empty name", ErrInvalidDescriptor) }
    ins, outs := d.inputs(), d.outputs()
    switch d.Kind {
    case Source:
        if len(ins) > 0 { return fmt.Errorf("%w: source %s declares inputs", ErrInvalidDescriptor, d.Name) }
    case Sink:
        if len(outs) > 0 { return fmt.Errorf("%w: sink %s declares outputs", ErrInvalidDescriptor, d.Name) }
    }
    if d.Kind != Source && len(ins) == 0 {
        return fmt.Errorf("%w: %s %s declares no inputs", ErrInvalidDescriptor, d.Kind, d.Name)
    }
    if d.Period < 0 { return fmt.Errorf("%w: negative period", ErrInvalidDescriptor) }
    declared := make(map[string]struct{}, len(ins))
    for _, p := range ins {
        if p.Name == "" { return fmt.Errorf("%w: unnamed input", ErrInvalidDescriptor) }
        declared[p.Name] = struct{}{}
    }
    for _, n := range d.Latch {
        if n == LatchAll { continue }
        if _, ok := declared[n]; !ok {
            return fmt.Errorf("%w: latch on undeclared input %q", ErrInvalidDescriptor, n)
        }
    }
    return nil
}

// Outputs maps declared output port names to the values to dispatch. A value
// that already is a channel.Message is sent as is.
type Outputs map[string]any

// Cycle is what a computation sees of one resolved iteration.
type Cycle struct {
    // Seq counts cycles from 1.
    Seq uint64
    // Trigger is the input that fired an AnyReady cycle; empty otherwise.
    Trigger string
    // TimedOut is set for cycles fired by the period timer.
    TimedOut bool
    // Inputs holds the messages consumed this cycle, by port name.
    Inputs map[string]channel.Message
    // Latch is the node's latch, already updated with Inputs.
    Latch *Latch
}

// Input returns the message consumed on name this cycle.
func (c *Cycle) Input(name string) (channel.Message, bool) {
    m, ok := c.Inputs[name]
    return m, ok
}

// Node is the capability set every node variant implements. S is the node's
// own state, built by Setup and passed to every Iterate and to Finalize.
// Finalize receives whatever Setup returned, even alongside an error, and
// must tolerate a partially built or nil state.
type Node[S any] interface {
    Setup(ctx context.Context, cfg config.Configuration) (*S, error)
    Iterate(ctx context.Context, s *S, cy *Cycle) (Outputs, error)
    Finalize(ctx context.Context, s *S) error
}

// Funcs adapts plain functions to Node. A nil SetupFn yields a zero S; a nil
// FinalizeFn does nothing.
type Funcs[S any] struct {
    SetupFn    func(ctx context.Context, cfg config.Configuration) (*S, error)
    IterateFn  func(ctx context.Context, s *S, cy *Cycle) (Outputs, error)
    FinalizeFn func(ctx context.Context, s *S) error
}

func (f Funcs[S]) Setup(ctx context.Context, cfg config.Configuration) (*S, error) {
    if f.SetupFn == nil { return new(S), nil }
    return f.SetupFn(ctx, cfg)
}

func (f Funcs[S]) Iterate(ctx context.Context, s *S, cy *Cycle) (Outputs, error) {
    if f.IterateFn == nil { return nil, nil }
    return f.IterateFn(ctx, s, cy)
}

func (f Funcs[S]) Finalize(ctx context.Context, s *S) error {
    if f.FinalizeFn == nil { return nil }
    return f.FinalizeFn(ctx, s)
}

// Stateless is the state type of nodes that keep none.
type Stateless struct{}
