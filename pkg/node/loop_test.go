package node

import (
    "context"
    "errors"
    "fmt"
    "math/rand"
    "sync/atomic"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/testutil"
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
)

func forwardNode() Funcs[Stateless] {
    return Funcs[Stateless]{
        IterateFn: func(_ context.Context, _ *Stateless, cy *Cycle) (Outputs, error) {
            m, _ := cy.Input(cy.Trigger)
            return Outputs{"C": m.Data}, nil
        },
    }
}

func TestAnyReadyForwardsInArrivalOrder(t *testing.T) {
    ports := []port.Port{port.In("A", codec.TypeInt64), port.In("B", codec.TypeInt64), port.Out("C", codec.TypeInt64)}
    h := newHarness(t, ports)
    startNode(t, Descriptor{Name: "fwd", Ports: ports, Policy: AnyReady}, forwardNode(), h)

    for _, step := range []struct {
        port string
        v    int64
    }{{"A", 1}, {"B", 2}, {"A", 3}} {
        h.send(t, step.port, step.v)
        if got := h.recv(t, "C"); got != step.v { t.Fatalf("want %d, got %v", step.v, got) }
    }
}

func TestLatchAndConditionalEmit(t *testing.T) {
    ports := []port.Port{port.In("Label", codec.TypeString), port.In("Trigger", codec.TypeInt64), port.Out("Out", codec.TypeString)}
    h := newHarness(t, ports)
    impl := Funcs[Stateless]{
        IterateFn: func(_ context.Context, _ *Stateless, cy *Cycle) (Outputs, error) {
            if cy.Trigger != "Trigger" { return nil, nil }
            label, _ := Latched[string](cy.Latch, "Label")
            m, _ := cy.Input("Trigger")
            return Outputs{"Out": fmt.Sprintf("%s%d", label, m.Data)}, nil
        },
    }
    startNode(t, Descriptor{Name: "latch", Ports: ports, Policy: AnyReady, Latch: []string{"Label"}}, impl, h)

    h.send(t, "Label", "x")
    h.send(t, "Trigger", int64(1))
    if got := h.recv(t, "Out"); got != "x1" { t.Fatalf("want x1, got %v", got) }
    h.send(t, "Label", "y")
    h.send(t, "Trigger", int64(2))
    if got := h.recv(t, "Out"); got != "y2" { t.Fatalf("want y2, got %v", got) }
    h.expectNone(t, "Out", 50*time.Millisecond)
}

// After every cycle the latch for each port equals the last value sent on it,
// whichever port triggered the cycle.
func TestLatchReflectsLastValuePerPort(t *testing.T) {
    names := []string{"p0", "p1", "p2"}
    ports := []port.Port{port.Out("snap", codec.TypeAny)}
    for _, n := range names { ports = append(ports, port.In(n, codec.TypeInt64)) }
    h := newHarness(t, ports)
    impl := Funcs[Stateless]{
        IterateFn: func(_ context.Context, _ *Stateless, cy *Cycle) (Outputs, error) {
            snap := map[string]int{}
            for k, m := range cy.Latch.Snapshot() { snap[k] = m.Data.(int) }
            return Outputs{"snap": snap}, nil
        },
    }
    startNode(t, Descriptor{Name: "prop", Ports: ports, Policy: AnyReady, Latch: []string{LatchAll}}, impl, h)

    rng := rand.New(rand.NewSource(42))
    want := map[string]int{}
    for k := 1; k <= 200; k++ {
        p := names[rng.Intn(len(names))]
        v := rng.Int()
        want[p] = v
        h.send(t, p, v)
        got := h.recv(t, "snap").(map[string]int)
        if len(got) != len(want) { t.Fatalf("cycle %d: latch size %d, want %d", k, len(got), len(want)) }
        for name, wv := range want {
            if got[name] != wv { t.Fatalf("cycle %d: latch[%s]=%d, want %d", k, name, got[name], wv) }
        }
    }
}

func TestAllReadyNeverFiresPartially(t *testing.T) {
    ports := []port.Port{port.In("Int", codec.TypeInt64), port.In("Str", codec.TypeString), port.Out("out", codec.TypeString)}
    h := newHarness(t, ports)
    var partial atomic.Int32
    impl := Funcs[Stateless]{
        IterateFn: func(_ context.Context, _ *Stateless, cy *Cycle) (Outputs, error) {
            i, ok1 := cy.Input("Int")
            s, ok2 := cy.Input("Str")
            if !ok1 || !ok2 || len(cy.Inputs) != 2 { partial.Add(1) }
            return Outputs{"out": fmt.Sprintf("%v%v", s.Data, i.Data)}, nil
        },
    }
    startNode(t, Descriptor{Name: "join", Ports: ports}, impl, h)

    h.send(t, "Int", int64(1))
    h.send(t, "Int", int64(2))
    h.expectNone(t, "out", 50*time.Millisecond)
    h.send(t, "Str", "a")
    if got := h.recv(t, "out"); got != "a1" { t.Fatalf("want a1, got %v", got) }
    h.expectNone(t, "out", 50*time.Millisecond)
    h.send(t, "Str", "b")
    if got := h.recv(t, "out"); got != "b2" { t.Fatalf("want b2, got %v", got) }
    if partial.Load() != 0 { t.Fatalf("computation ran with a partial input set") }
}

func TestCycleErrorsAreReportedAndIsolated(t *testing.T) {
    core, logs := observer.New(zapcore.WarnLevel)
    reg := prometheus.NewRegistry()
    metrics := NewMetrics(reg)
    var reported []error

    ports := []port.Port{port.In("in", codec.TypeAny), port.Out("out", codec.TypeAny)}
    h := newHarness(t, ports)
    impl := Funcs[Stateless]{
        IterateFn: func(_ context.Context, _ *Stateless, cy *Cycle) (Outputs, error) {
            v, err := port.Value[int64](cy.Inputs["in"], nil)
            if err != nil { return nil, err }
            return Outputs{"out": v * 10, "nowhere": v}, nil
        },
    }
    lc := startNode(t, Descriptor{Name: "iso", Ports: ports}, impl, h,
        WithLogger(zap.New(core)), WithMetrics(metrics), WithErrorHandler(func(err error) { reported = append(reported, err) }))

    h.send(t, "in", "not a number")
    h.send(t, "in", int64(4))
    if got := h.recv(t, "out"); got != int64(40) { t.Fatalf("want 40, got %v", got) }
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    if err := lc.Stop(ctx); err != nil { t.Fatalf("stop: %v", err) }

    if logs.FilterMessage("cycle discarded").Len() != 1 { t.Fatalf("malformed message not logged: %v", logs.All()) }
    if logs.FilterMessage("dispatch failed").Len() != 1 { t.Fatalf("undeclared output not logged: %v", logs.All()) }
    if len(reported) != 2 || !errors.Is(reported[0], port.ErrPayload) || !errors.Is(reported[1], ErrUnknownOutput) {
        t.Fatalf("unexpected reported errors: %v", reported)
    }
    if got := testutil.ToFloat64(metrics.Cycles.WithLabelValues("iso")); got != 2 { t.Fatalf("cycles=%v", got) }
    if got := testutil.ToFloat64(metrics.Errors.WithLabelValues("iso", errKindCycle)); got != 1 { t.Fatalf("cycle errors=%v", got) }
    if got := testutil.ToFloat64(metrics.Dispatched.WithLabelValues("iso", "out")); got != 1 { t.Fatalf("dispatched=%v", got) }
}

func TestFatalErrorStopsNode(t *testing.T) {
    ports := []port.Port{port.In("in", codec.TypeAny)}
    h := newHarness(t, ports)
    boom := errors.New("corrupted store")
    var finalized atomic.Int32
    impl := Funcs[Stateless]{
        IterateFn: func(_ context.Context, _ *Stateless, _ *Cycle) (Outputs, error) { return nil, Fatal(boom) },
        FinalizeFn: func(_ context.Context, _ *Stateless) error { finalized.Add(1); return nil },
    }
    lc := startNode(t, Descriptor{Name: "fatal", Kind: Sink, Ports: ports}, impl, h)

    h.send(t, "in", 1)
    waitDone(t, lc)
    if !IsFatal(lc.Err()) || !errors.Is(lc.Err(), boom) { t.Fatalf("want fatal boom, got %v", lc.Err()) }
    if lc.Phase() != Terminated || finalized.Load() != 1 { t.Fatalf("phase=%s finalized=%d", lc.Phase(), finalized.Load()) }
}

func TestAnyReadySurvivesClosedPorts(t *testing.T) {
    ports := []port.Port{port.In("A", codec.TypeAny), port.In("B", codec.TypeAny), port.Out("C", codec.TypeAny)}
    h := newHarness(t, ports)
    lc := startNode(t, Descriptor{Name: "any", Ports: ports, Policy: AnyReady}, forwardNode(), h)

    h.in["A"].Close()
    h.send(t, "B", "still alive")
    if got := h.recv(t, "C"); got != "still alive" { t.Fatalf("got %v", got) }
    h.in["B"].Close()
    waitDone(t, lc)
    if lc.Err() != nil { t.Fatalf("exhausted inputs is a clean stop, got %v", lc.Err()) }
}

func TestAllReadyClosedInputIsFatal(t *testing.T) {
    ports := []port.Port{port.In("A", codec.TypeAny), port.In("B", codec.TypeAny)}
    h := newHarness(t, ports)
    lc := startNode(t, Descriptor{Name: "all", Kind: Sink, Ports: ports}, Funcs[Stateless]{}, h)

    h.in["B"].Close()
    waitDone(t, lc)
    if !errors.Is(lc.Err(), ErrInputClosed) || !IsFatal(lc.Err()) { t.Fatalf("want fatal ErrInputClosed, got %v", lc.Err()) }
}

func TestPeriodTimeoutCycles(t *testing.T) {
    ports := []port.Port{port.In("in", codec.TypeAny), port.Out("out", codec.TypeString)}
    h := newHarness(t, ports)
    impl := Funcs[Stateless]{
        IterateFn: func(_ context.Context, _ *Stateless, cy *Cycle) (Outputs, error) {
            if cy.TimedOut { return Outputs{"out": "tick"}, nil }
            return Outputs{"out": fmt.Sprint("in:", cy.Inputs["in"].Data)}, nil
        },
    }
    startNode(t, Descriptor{Name: "period", Ports: ports, Policy: AnyReady, Period: 30 * time.Millisecond}, impl, h)

    if got := h.recv(t, "out"); got != "tick" { t.Fatalf("want tick, got %v", got) }
    h.send(t, "in", 5)
    for {
        got := h.recv(t, "out")
        if got == "tick" { continue }
        if got != "in:5" { t.Fatalf("want in:5, got %v", got) }
        break
    }
    if got := h.recv(t, "out"); got != "tick" { t.Fatalf("timer stopped after input: %v", got) }
}

func TestSourceFiresEveryCycleAndStopsWhenOutputsGone(t *testing.T) {
    ports := []port.Port{port.Out("out", codec.TypeInt64)}
    h := newHarness(t, ports)
    impl := Funcs[int64]{
        IterateFn: func(_ context.Context, n *int64, _ *Cycle) (Outputs, error) {
            *n++
            return Outputs{"out": *n}, nil
        },
    }
    lc := startNode(t, Descriptor{Name: "src", Kind: Source, Ports: ports}, impl, h)
    for want := int64(1); want <= 3; want++ {
        if got := h.recv(t, "out"); got != want { t.Fatalf("want %d, got %v", want, got) }
    }
    h.out["out"].Close()
    waitDone(t, lc)
    if lc.Err() != nil { t.Fatalf("unexpected error: %v", lc.Err()) }
}

func TestCancelledLoopNeverFires(t *testing.T) {
    ports := []port.Port{port.In("A", codec.TypeAny), port.In("B", codec.TypeAny)}
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    // both inputs and ctx.Done are ready together; whichever the select
    // picks, no cycle may start
    for i := 0; i < 50; i++ {
        h := newHarness(t, ports)
        h.send(t, "A", i)
        h.send(t, "B", i)
        set, err := port.Bind(ports, h.w)
        if err != nil { t.Fatal(err) }
        desc := Descriptor{Name: "cancelled", Ports: ports}
        lp := newLoop("cancelled", desc, Node[Stateless](forwardNode()), &Stateless{}, set, options{metrics: NewMetrics(nil)}, zap.NewNop())
        cy, err := lp.await(ctx)
        if err != nil || cy != nil { t.Fatalf("round %d: fired after cancellation: %+v %v", i, cy, err) }
    }
}
