// Package port declares node ports and binds them to channel endpoints.
//
// A node declares its ports once; Bind asks a Provider for the endpoint of
// every declared port by name and payload type and returns an immutable Set.
// A missing or mistyped port is a setup-time error.
package port

import (
    "errors"
    "fmt"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
)

var (
    ErrNotFound     = errors.New("port: not found")
    ErrTypeMismatch = errors.New("port: payload type mismatch")
    ErrDuplicate    = errors.New("port: duplicate name")
)

// Direction of a port relative to its node.
type Direction int

const (
    Input Direction = iota
    Output
)

func (d Direction) String() string {
    if d == Output { return "output" }
    return "input"
}

// Port is the identity of one attachment point. Names are unique per node and
// direction.
type Port struct {
    Name      string
    Type      string
    Direction Direction
}

// In declares an input port.
func In(name, typ string) Port { return Port{Name: name, Type: typ, Direction: Input} }

// Out declares an output port.
func Out(name, typ string) Port { return Port{Name: name, Type: typ, Direction: Output} }

func (p Port) String() string { return fmt.Sprintf("%s %s<%s>", p.Direction, p.Name, p.Type) }

// TypesMatch reports whether a declared type and an offered type are
// compatible. The "any" tag matches everything.
func TypesMatch(declared, offered string) bool {
    if declared == offered { return true }
    return declared == codec.TypeAny || offered == codec.TypeAny || declared == "" || offered == ""
}

// Provider hands out channel endpoints by name and expected payload type.
type Provider interface {
    Input(name, typ string) (*channel.Receiver, error)
    Output(name, typ string) (*channel.Sender, error)
}

// InputPort is a bound input.
type InputPort struct {
    Port
    rx *channel.Receiver
}

// Receiver returns the bound endpoint.
func (p *InputPort) Receiver() *channel.Receiver { return p.rx }

// OutputPort is a bound output.
type OutputPort struct {
    Port
    tx *channel.Sender
}

// Sender returns the bound endpoint.
func (p *OutputPort) Sender() *channel.Sender { return p.tx }

// Set is the ordered, immutable collection of a node's bound ports.
type Set struct {
    inputs  []*InputPort
    outputs []*OutputPort
    in      map[string]*InputPort
    out     map[string]*OutputPort
}

// Bind resolves every declared port through p. Declaration order is kept.
// On failure every endpoint already taken is closed, so that peers see
// ErrClosed instead of waiting on a node that never runs.
func Bind(decl []Port, p Provider) (*Set, error) {
    s, err := bind(decl, p)
    if err != nil {
        s.Close()
        return nil, err
    }
    return s, nil
}

func bind(decl []Port, p Provider) (*Set, error) {
    s := &Set{in: make(map[string]*InputPort), out: make(map[string]*OutputPort)}
    for _, d := range decl {
        switch d.Direction {
        case Input:
            if _, dup := s.in[d.Name]; dup { return s, fmt.Errorf("%w: input %q", ErrDuplicate, d.Name) }
            rx, err := p.Input(d.Name, d.Type)
            if err != nil { return s, err }
            ip := &InputPort{Port: d, rx: rx}
            s.inputs = append(s.inputs, ip)
            s.in[d.Name] = ip
        case Output:
            if _, dup := s.out[d.Name]; dup { return s, fmt.Errorf("%w: output %q", ErrDuplicate, d.Name) }
            tx, err := p.Output(d.Name, d.Type)
            if err != nil { return s, err }
            op := &OutputPort{Port: d, tx: tx}
            s.outputs = append(s.outputs, op)
            s.out[d.Name] = op
        }
    }
    return s, nil
}

func (s *Set) Inputs() []*InputPort   { return s.inputs }
func (s *Set) Outputs() []*OutputPort { return s.outputs }

func (s *Set) Input(name string) (*InputPort, bool)   { p, ok := s.in[name]; return p, ok }
func (s *Set) Output(name string) (*OutputPort, bool) { p, ok := s.out[name]; return p, ok }

// Close tears down every endpoint: inputs stop accepting, outputs are closed
// so that downstream consumers drain and stop. Safe to call more than once.
func (s *Set) Close() {
    if s == nil { return }
    for _, p := range s.inputs { p.rx.Close() }
    for _, p := range s.outputs { p.tx.Close() }
}
