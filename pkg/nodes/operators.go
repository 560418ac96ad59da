package nodes

import (
    "context"
    "fmt"
    "time"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
)

// forward relays its inputs to a single output "out". Inputs come from the
// "inputs" config list (default "in"). Under the "policy" key, any-ready (the
// default) relays whichever input fires; all-ready waits for one message on
// every input and emits their payloads as a list in declared order.
func newForward(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    policy, err := node.ParsePolicy(cfg.String("policy", "any"))
    if err != nil { return nil, fmt.Errorf("%w: %v", config.ErrInvalidValue, err) }
    ins := cfg.Strings("inputs", []string{"in"})
    ports := make([]port.Port, 0, len(ins)+1)
    for _, in := range ins { ports = append(ports, port.In(in, codec.TypeAny)) }
    ports = append(ports, port.Out("out", codec.TypeAny))
    desc := node.Descriptor{Name: name, Policy: policy, Ports: ports}
    impl := node.Funcs[node.Stateless]{
        IterateFn: func(_ context.Context, _ *node.Stateless, cy *node.Cycle) (node.Outputs, error) {
            if policy == node.AnyReady {
                m, _ := cy.Input(cy.Trigger)
                return node.Outputs{"out": m}, nil
            }
            if len(ins) == 1 { return node.Outputs{"out": cy.Inputs[ins[0]]}, nil }
            joined := make([]any, len(ins))
            for i, in := range ins { joined[i] = cy.Inputs[in].Data }
            return node.Outputs{"out": joined}, nil
        },
    }
    return node.New[node.Stateless](desc, impl, cfg, p, env.Options()...)
}

// labeler latches Label and emits "<label><trigger>" on Out for every
// Trigger message. Triggers before any label use the "label" config value.
func newLabeler(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    desc := node.Descriptor{
        Name:   name,
        Policy: node.AnyReady,
        Ports: []port.Port{
            port.In("Label", codec.TypeString),
            port.In("Trigger", codec.TypeAny),
            port.Out("Out", codec.TypeString),
        },
        Latch: []string{"Label"},
    }
    impl := node.Funcs[node.Stateless]{
        IterateFn: func(_ context.Context, _ *node.Stateless, cy *node.Cycle) (node.Outputs, error) {
            if cy.Trigger != "Trigger" { return nil, nil }
            label := cfg.String("label", "")
            if m, ok := cy.Latch.Read("Label"); ok {
                var err error
                if label, err = text(m); err != nil { return nil, err }
            }
            return node.Outputs{"Out": label + render(cy.Inputs["Trigger"].Data)}, nil
        },
    }
    return node.New[node.Stateless](desc, impl, cfg, p, env.Options()...)
}

var greetings = map[string]string{
    "Sofia":    "Ciao, %s!\n",
    "Leonardo": "Ciao, %s!\n",
    "Lucia":    "¡Hola, %s!\n",
    "Martin":   "¡Hola, %s!\n",
    "Jade":     "Bonjour, %s!\n",
    "Gabriel":  "Bonjour, %s!\n",
}

// Greeting returns the localized greeting for name.
func Greeting(name string) string {
    f, ok := greetings[name]
    if !ok { f = "Hello, %s!\n" }
    return fmt.Sprintf(f, name)
}

func newGreetings(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    desc := node.Descriptor{
        Name:  name,
        Ports: []port.Port{port.In("name", codec.TypeAny), port.Out("greeting", codec.TypeString)},
    }
    impl := node.Funcs[node.Stateless]{
        IterateFn: func(_ context.Context, _ *node.Stateless, cy *node.Cycle) (node.Outputs, error) {
            who, err := text(cy.Inputs["name"])
            if err != nil { return nil, err }
            return node.Outputs{"greeting": Greeting(who)}, nil
        },
    }
    return node.New[node.Stateless](desc, impl, cfg, p, env.Options()...)
}

// missState counts consecutive periods without input.
type missState struct {
    missed uint64
}

// period-miss-detector reports every input and emits a default value when
// a whole period passes without one.
func newPeriodMiss(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    period := cfg.Duration("period", 5*time.Second)
    if period <= 0 { return nil, fmt.Errorf("%w: period must be positive", config.ErrInvalidValue) }
    desc := node.Descriptor{
        Name:   name,
        Policy: node.AnyReady,
        Period: period,
        Ports:  []port.Port{port.In("in", codec.TypeAny), port.Out("out", codec.TypeString)},
    }
    impl := node.Funcs[missState]{
        IterateFn: func(_ context.Context, st *missState, cy *node.Cycle) (node.Outputs, error) {
            if cy.TimedOut {
                st.missed++
                return node.Outputs{"out": "(default) 0\n"}, nil
            }
            st.missed = 0
            return node.Outputs{"out": fmt.Sprintf("Received: %s\n", render(cy.Inputs["in"].Data))}, nil
        },
    }
    return node.New[missState](desc, impl, cfg, p, env.Options()...)
}
