package nodes

import (
    "context"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
)

const (
    IntPort = "Int"
    StrPort = "Str"
)

type wordRule struct {
    word    string
    divisor int64
}

func wordSetup(defWord string, defDivisor int64) func(context.Context, config.Configuration) (*wordRule, error) {
    return func(_ context.Context, cfg config.Configuration) (*wordRule, error) {
        r := &wordRule{word: cfg.String("word", defWord), divisor: cfg.Int("divisor", defDivisor)}
        if r.divisor == 0 { r.divisor = defDivisor }
        return r, nil
    }
}

// Fizz forwards Int and emits the fizz word on Str when Int is a multiple of
// the divisor (default 2), an empty string otherwise.
func newFizz(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    desc := node.Descriptor{
        Name: name,
        Ports: []port.Port{
            port.In(IntPort, codec.TypeInt64),
            port.Out(IntPort, codec.TypeInt64),
            port.Out(StrPort, codec.TypeString),
        },
    }
    impl := node.Funcs[wordRule]{
        SetupFn: wordSetup("Fizz", 2),
        IterateFn: func(_ context.Context, r *wordRule, cy *node.Cycle) (node.Outputs, error) {
            m, _ := cy.Input(IntPort)
            n, err := integer(m)
            if err != nil { return nil, err }
            fizz := ""
            if n%r.divisor == 0 { fizz = r.word }
            return node.Outputs{IntPort: n, StrPort: fizz}, nil
        },
    }
    return node.New[wordRule](desc, impl, cfg, p, env.Options()...)
}

// Buzz joins Int and Str and appends the buzzword (default "Buzz") when Int
// is a multiple of the divisor (default 3).
func newBuzz(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    desc := node.Descriptor{
        Name: name,
        Ports: []port.Port{
            port.In(IntPort, codec.TypeInt64),
            port.In(StrPort, codec.TypeString),
            port.Out(StrPort, codec.TypeString),
        },
    }
    impl := node.Funcs[wordRule]{
        SetupFn: func(ctx context.Context, cfg config.Configuration) (*wordRule, error) {
            r, err := wordSetup("Buzz", 3)(ctx, cfg)
            if err != nil { return nil, err }
            r.word = cfg.String("buzzword", r.word)
            return r, nil
        },
        IterateFn: func(_ context.Context, r *wordRule, cy *node.Cycle) (node.Outputs, error) {
            sm, _ := cy.Input(StrPort)
            fizz, err := text(sm)
            if err != nil { return nil, err }
            im, _ := cy.Input(IntPort)
            n, err := integer(im)
            if err != nil { return nil, err }
            if n%r.divisor == 0 { fizz += r.word }
            return node.Outputs{StrPort: fizz}, nil
        },
    }
    return node.New[wordRule](desc, impl, cfg, p, env.Options()...)
}
