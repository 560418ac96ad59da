package dataflow

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/memkv"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/nodes"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
)

var errBoom = errors.New("boom")

// testRegistry holds the stock kinds plus "collect", which forwards the
// values it receives to got while there is room, and "explode", which fails fatally.
func testRegistry(t *testing.T, got chan<- any) (*registry.Store, registry.Env) {
    t.Helper()
    kv := memkv.New(memkv.Options{})
    t.Cleanup(kv.Close)
    reg := registry.NewStore(kv)
    if err := nodes.Register(reg); err != nil { t.Fatal(err) }
    reg.MustRegister("collect", "test sink", func(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
        desc := node.Descriptor{Name: name, Kind: node.Sink, Ports: []port.Port{port.In("in", codec.TypeAny)}}
        return node.New[node.Stateless](desc, node.Funcs[node.Stateless]{
            IterateFn: func(_ context.Context, _ *node.Stateless, cy *node.Cycle) (node.Outputs, error) {
                select {
                case got <- cy.Inputs["in"].Data:
                default:
                }
                return nil, nil
            },
        }, cfg, p, env.Options()...)
    })
    reg.MustRegister("explode", "fails on first input", func(name string, cfg config.Configuration, p port.Provider, env registry.Env) (node.Instance, error) {
        desc := node.Descriptor{Name: name, Kind: node.Sink, Ports: []port.Port{port.In("in", codec.TypeAny)}}
        return node.New[node.Stateless](desc, node.Funcs[node.Stateless]{
            IterateFn: func(context.Context, *node.Stateless, *node.Cycle) (node.Outputs, error) { return nil, node.Fatal(errBoom) },
        }, cfg, p, env.Options()...)
    })
    return reg, registry.Env{Store: kv}
}

func collect(t *testing.T, got <-chan any, n int) []any {
    t.Helper()
    out := make([]any, 0, n)
    for len(out) < n {
        select {
        case v := <-got:
            out = append(out, v)
        case <-time.After(3 * time.Second):
            t.Fatalf("collected %d of %d values: %v", len(out), n, out)
        }
    }
    return out
}

type running struct {
    f      *Flow
    cancel context.CancelFunc
    done   chan struct{}
    err    error
}

func (r *running) wait(t *testing.T) error {
    t.Helper()
    select {
    case <-r.done:
        return r.err
    case <-time.After(5 * time.Second):
        t.Fatalf("dataflow did not stop")
        return nil
    }
}

func startFlow(t *testing.T, df config.DataflowConfig, reg *registry.Store, env registry.Env) *running {
    t.Helper()
    f, err := Build(df, Options{Registry: reg, Env: env})
    if err != nil { t.Fatalf("build: %v", err) }
    ctx, cancel := context.WithCancel(context.Background())
    r := &running{f: f, cancel: cancel, done: make(chan struct{})}
    go func() { r.err = f.Run(ctx); close(r.done) }()
    t.Cleanup(func() {
        cancel()
        _ = r.wait(t)
    })
    return r
}

func fizzbuzz(transport string) config.DataflowConfig {
    return config.DataflowConfig{
        Name:            "fizzbuzz",
        ChannelCapacity: 4,
        Nodes: []config.NodeConfig{
            {ID: "counter", Kind: "counter-source", Config: map[string]any{"initial": 1, "period": "2ms"}},
            {ID: "fizz", Kind: "fizz"},
            {ID: "buzz", Kind: "buzz"},
            {ID: "out", Kind: "collect"},
        },
        Links: []config.LinkConfig{
            {From: "counter.Counter", To: "fizz.Int"},
            {From: "fizz.Int", To: "buzz.Int", Transport: transport, Codec: "cbor"},
            {From: "fizz.Str", To: "buzz.Str", Transport: transport, Codec: "json"},
            {From: "buzz.Str", To: "out.in"},
        },
    }
}

func TestFizzBuzzFlow(t *testing.T) {
    want := []any{"", "Fizz", "Buzz", "Fizz", "", "FizzBuzz", "", "Fizz", "Buzz"}
    for _, tr := range []string{"", "mem"} {
        t.Run("transport="+tr, func(t *testing.T) {
            got := make(chan any, 64)
            reg, env := testRegistry(t, got)
            r := startFlow(t, fizzbuzz(tr), reg, env)
            values := collect(t, got, len(want))
            for i := range want {
                if values[i] != want[i] { t.Fatalf("value %d: got %q, want %q (all: %q)", i, values[i], want[i], values) }
            }
            if tr == "mem" && len(r.f.Links()) != 2 { t.Fatalf("want 2 encoded links, got %d", len(r.f.Links())) }
        })
    }
}

func TestFanOut(t *testing.T) {
    got := make(chan any, 64)
    reg, env := testRegistry(t, got)
    df := config.DataflowConfig{
        Name: "fan",
        Nodes: []config.NodeConfig{
            {ID: "counter", Kind: "counter-source", Config: map[string]any{"initial": 0, "period": "2ms", "key": "fan"}},
            {ID: "a", Kind: "collect"},
            {ID: "b", Kind: "collect"},
        },
        Links: []config.LinkConfig{
            {From: "counter.Counter", To: "a.in"},
            {From: "counter.Counter", To: "b.in"},
        },
    }
    startFlow(t, df, reg, env)
    counts := map[int64]int{}
    for _, v := range collect(t, got, 10) { counts[v.(int64)]++ }
    for v := int64(0); v < 4; v++ {
        if counts[v] != 2 { t.Fatalf("value %d delivered %d times: %v", v, counts[v], counts) }
    }
}

func TestNodeFailureStopsFlow(t *testing.T) {
    got := make(chan any, 64)
    reg, env := testRegistry(t, got)
    df := config.DataflowConfig{
        Name: "fail",
        Nodes: []config.NodeConfig{
            {ID: "counter", Kind: "counter-source", Config: map[string]any{"period": "5ms", "key": "fail"}},
            {ID: "bad", Kind: "explode"},
        },
        Links: []config.LinkConfig{{From: "counter.Counter", To: "bad.in"}},
    }
    r := startFlow(t, df, reg, env)
    if err := r.wait(t); !errors.Is(err, errBoom) || !node.IsFatal(err) { t.Fatalf("want fatal boom, got %v", err) }
    for _, inst := range r.f.Instances() {
        if inst.Phase() != node.Terminated { t.Fatalf("%s left in phase %s", inst.Name(), inst.Phase()) }
    }
    if doc, ok := reg.Get("bad"); !ok || doc.Phase != "terminated" { t.Fatalf("registry record: %+v", doc) }
}

func TestCancelStopsCleanly(t *testing.T) {
    got := make(chan any, 64)
    reg, env := testRegistry(t, got)
    r := startFlow(t, fizzbuzz("mem"), reg, env)
    collect(t, got, 3)
    r.cancel()
    if err := r.wait(t); err != nil { t.Fatalf("cancelled flow returned %v", err) }
}

func TestBuildErrors(t *testing.T) {
    reg, env := testRegistry(t, make(chan any, 1))
    base := func() config.DataflowConfig {
        return config.DataflowConfig{
            Nodes: []config.NodeConfig{
                {ID: "fizz", Kind: "fizz"},
                {ID: "hamburg", Kind: "hamburg"},
                {ID: "out", Kind: "collect"},
                {ID: "out2", Kind: "collect"},
            },
        }
    }
    cases := []struct {
        name  string
        links []config.LinkConfig
        want  error
    }{
        {"unknown node", []config.LinkConfig{{From: "nope.x", To: "out.in"}}, ErrUnknownNode},
        {"unknown port", []config.LinkConfig{{From: "fizz.Nope", To: "out.in"}}, ErrUnknownPort},
        {"type mismatch", []config.LinkConfig{{From: "fizz.Str", To: "hamburg.Tigris"}}, ErrTypeMismatch},
        {"fan-in", []config.LinkConfig{{From: "fizz.Str", To: "out.in"}, {From: "fizz.Int", To: "out.in"}}, ErrFanIn},
        {"unconnected", []config.LinkConfig{{From: "fizz.Str", To: "out.in"}}, ErrUnconnected},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            df := base()
            df.Links = tc.links
            if _, err := Build(df, Options{Registry: reg, Env: env}); !errors.Is(err, tc.want) {
                t.Fatalf("want %v, got %v", tc.want, err)
            }
        })
    }
}

func TestAnyReadyInputsMayStayUnlinked(t *testing.T) {
    got := make(chan any, 64)
    reg, env := testRegistry(t, got)
    df := config.DataflowConfig{
        Name: "hamburg-only",
        Nodes: []config.NodeConfig{
            {ID: "src", Kind: "counter-source", Config: map[string]any{"period": "2ms", "key": "danube"}},
            {ID: "danube", Kind: "forward"},
            {ID: "hamburg", Kind: "hamburg"},
            {ID: "out", Kind: "collect"},
        },
        Links: []config.LinkConfig{
            {From: "src.Counter", To: "danube.in"},
            {From: "danube.out", To: "hamburg.Danube"},
            {From: "hamburg.Parana", To: "out.in"},
        },
    }
    startFlow(t, df, reg, env)
    for i, v := range collect(t, got, 3) {
        if want := "hamburg/parana:" + string(rune('0'+i)); v != want { t.Fatalf("got %q, want %q", v, want) }
    }
}
