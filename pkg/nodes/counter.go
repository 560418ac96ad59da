package nodes

import (
    "context"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/memkv"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
)

const (
    CounterPort       = "Counter"
    defaultCounterKey = "counter"
)

// counter emits an increasing sequence kept in a shared store. Instances
// configured with the same key share one sequence.
type counter struct {
    store *memkv.Store
    log   *zap.Logger
}

type counterState struct {
    key  string
    step int64
}

func (c counter) Setup(_ context.Context, cfg config.Configuration) (*counterState, error) {
    st := &counterState{key: cfg.String("key", defaultCounterKey), step: cfg.Int("step", 1)}
    if st.step == 0 { return nil, fmt.Errorf("%w: step must not be zero", config.ErrInvalidValue) }
    if cfg.Has("initial") {
        initial, err := cfg.RequireInt("initial")
        if err != nil { return nil, err }
        if err := c.store.SetCounter(st.key, initial); err != nil { return nil, err }
        c.log.Info("counter seeded", zap.String("key", st.key), zap.Int64("initial", initial))
        return st, nil
    }
    n, ok, err := c.store.Counter(st.key)
    if err != nil { return nil, fmt.Errorf("counter %s: %w", st.key, err) }
    if ok { c.log.Info("counter resumes shared sequence", zap.String("key", st.key), zap.Int64("next", n)) }
    return st, nil
}

// Iterate emits the current value and advances the counter.
func (c counter) Iterate(_ context.Context, st *counterState, _ *node.Cycle) (node.Outputs, error) {
    n, err := c.store.Incr(st.key, st.step)
    if err != nil { return nil, node.Fatal(err) }
    return node.Outputs{CounterPort: n - st.step}, nil
}

func (counter) Finalize(context.Context, *counterState) error { return nil }

func newCounter(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
    store := env.Store
    if store == nil { return nil, fmt.Errorf("counter-source %s: no state store", name) }
    log := env.Log
    if log == nil { log = zap.L() }
    desc := node.Descriptor{
        Name:   name,
        Kind:   node.Source,
        Ports:  []port.Port{port.Out(CounterPort, codec.TypeInt64)},
        Period: cfg.Duration("period", time.Second),
    }
    return node.New[counterState](desc, counter{store: store, log: log.With(zap.String("node", name))}, cfg, p, env.Options()...)
}
