package nodes

import (
    "context"
    "fmt"
    "math/rand"
    "time"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
)

// Port names of the river topology.
const (
    TigrisPort   = "Tigris"
    GangesPort   = "Ganges"
    NilePort     = "Nile"
    DanubePort   = "Danube"
    ParanaPort   = "Parana"
    TagusPort    = "Tagus"
    CongoPort    = "Congo"
    ArkansasPort = "Arkansas"
    AmazonPort   = "Amazon"
    ChenabPort   = "Chenab"
    SalweenPort  = "Salween"
    GodavariPort = "Godavari"
    LoirePort    = "Loire"
    YamunaPort   = "Yamuna"
    BrazosPort   = "Brazos"
    MissouriPort = "Missouri"
)

const montblancPeriod = 100 * time.Millisecond

// Cordoba is a source emitting a random float64 in [0, scale) on Amazon every
// period.
func newCordoba(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    period := cfg.Duration("period", montblancPeriod)
    if period <= 0 { return nil, fmt.Errorf("%w: period must be positive", config.ErrInvalidValue) }
    scale := cfg.Float("scale", 1e6)
    desc := node.Descriptor{
        Name:   name,
        Kind:   node.Source,
        Ports:  []port.Port{port.Out(AmazonPort, codec.TypeFloat64)},
        Period: period,
    }
    impl := node.Funcs[node.Stateless]{
        IterateFn: func(context.Context, *node.Stateless, *node.Cycle) (node.Outputs, error) {
            return node.Outputs{AmazonPort: rand.Float64() * scale}, nil
        },
    }
    return node.New[node.Stateless](desc, impl, cfg, p, env.Options()...)
}

// Mandalay latches all six of its inputs and, once a period passes with no
// input, publishes what it holds: the Salween cloud on Brazos, a pose built
// from Yamuna and Chenab on Tagus and a frame of Danube and Godavari on
// Missouri. An output whose sources never arrived is skipped.
func newMandalay(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    period := cfg.Duration("period", montblancPeriod)
    if period <= 0 { return nil, fmt.Errorf("%w: period must be positive", config.ErrInvalidValue) }
    desc := node.Descriptor{
        Name:   name,
        Policy: node.AnyReady,
        Period: period,
        Ports: []port.Port{
            port.In(DanubePort, codec.TypeString),
            port.In(ChenabPort, codec.TypeAny),
            port.In(SalweenPort, codec.TypeAny),
            port.In(GodavariPort, codec.TypeAny),
            port.In(LoirePort, codec.TypeAny),
            port.In(YamunaPort, codec.TypeAny),
            port.Out(BrazosPort, codec.TypeAny),
            port.Out(TagusPort, codec.TypeAny),
            port.Out(MissouriPort, codec.TypeAny),
        },
        Latch: []string{node.LatchAll},
    }
    impl := node.Funcs[node.Stateless]{
        IterateFn: func(_ context.Context, _ *node.Stateless, cy *node.Cycle) (node.Outputs, error) {
            if !cy.TimedOut { return nil, nil }
            held := cy.Latch.Snapshot()
            out := node.Outputs{}
            if m, ok := held[SalweenPort]; ok { out[BrazosPort] = unwrap(m.Data) }
            if pos, ok := held[YamunaPort]; ok {
                if rot, ok := held[ChenabPort]; ok {
                    out[TagusPort] = map[string]any{"position": unwrap(pos.Data), "orientation": unwrap(rot.Data)}
                }
            }
            if m, ok := held[DanubePort]; ok {
                frame, err := text(m)
                if err != nil { return nil, err }
                img := map[string]any{"frame": frame}
                if scan, ok := held[GodavariPort]; ok { img["scan"] = unwrap(scan.Data) }
                out[MissouriPort] = img
            }
            return out, nil
        },
    }
    return node.New[node.Stateless](desc, impl, cfg, p, env.Options()...)
}

// Hamburg keeps the latest Tigris, Ganges and Nile values and turns every
// Danube message into "hamburg/parana:<danube>" on Parana.
func newHamburg(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    desc := node.Descriptor{
        Name:   name,
        Policy: node.AnyReady,
        Ports: []port.Port{
            port.In(TigrisPort, codec.TypeFloat64),
            port.In(GangesPort, codec.TypeInt64),
            port.In(NilePort, codec.TypeInt64),
            port.In(DanubePort, codec.TypeString),
            port.Out(ParanaPort, codec.TypeString),
        },
        Latch: []string{TigrisPort, GangesPort, NilePort},
    }
    impl := node.Funcs[node.Stateless]{
        IterateFn: func(_ context.Context, _ *node.Stateless, cy *node.Cycle) (node.Outputs, error) {
            if cy.Trigger != DanubePort { return nil, nil }
            danube, err := text(cy.Inputs[DanubePort])
            if err != nil { return nil, err }
            return node.Outputs{ParanaPort: "hamburg/parana:" + danube}, nil
        },
    }
    return node.New[node.Stateless](desc, impl, cfg, p, env.Options()...)
}

// Geneva keeps the latest Danube, Tagus and Congo values and emits
// "<parana>-<danube>" on Arkansas for every Parana message.
func newGeneva(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    desc := node.Descriptor{
        Name:   name,
        Policy: node.AnyReady,
        Ports: []port.Port{
            port.In(ParanaPort, codec.TypeString),
            port.In(DanubePort, codec.TypeString),
            port.In(TagusPort, codec.TypeAny),
            port.In(CongoPort, codec.TypeAny),
            port.Out(ArkansasPort, codec.TypeString),
        },
        Latch: []string{DanubePort, TagusPort, CongoPort},
    }
    impl := node.Funcs[node.Stateless]{
        IterateFn: func(_ context.Context, _ *node.Stateless, cy *node.Cycle) (node.Outputs, error) {
            if cy.Trigger != ParanaPort { return nil, nil }
            parana, err := text(cy.Inputs[ParanaPort])
            if err != nil { return nil, err }
            danube := cfg.String("danube_default", "")
            if m, ok := cy.Latch.Read(DanubePort); ok {
                if danube, err = text(m); err != nil { return nil, err }
            }
            return node.Outputs{ArkansasPort: parana + "-" + danube}, nil
        },
    }
    return node.New[node.Stateless](desc, impl, cfg, p, env.Options()...)
}
