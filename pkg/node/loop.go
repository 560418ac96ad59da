package node

import (
    "context"
    "errors"
    "fmt"
    "reflect"
    "time"

    "go.uber.org/zap"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
)

var errExhausted = errors.New("node: every input closed")

// loop is the Iteration Loop of one node. It is driven by a single goroutine.
type loop[S any] struct {
    name     string
    desc     Descriptor
    impl     Node[S]
    state    *S
    ports    *port.Set
    ins      []*port.InputPort
    tokens   []channel.Token
    live     []bool
    nlive    int
    deadOut  map[string]bool
    latch    *Latch
    seq      uint64
    deadline time.Time

    log     *zap.Logger
    metrics *Metrics
    onError func(error)
}

func newLoop[S any](name string, desc Descriptor, impl Node[S], state *S, ports *port.Set, o options, log *zap.Logger) *loop[S] {
    ins := ports.Inputs()
    l := &loop[S]{
        name:    name,
        desc:    desc,
        impl:    impl,
        state:   state,
        ports:   ports,
        ins:     ins,
        tokens:  make([]channel.Token, len(ins)),
        live:    make([]bool, len(ins)),
        nlive:   len(ins),
        deadOut: make(map[string]bool),
        latch:   NewLatch(desc.Latch...),
        log:     log,
        metrics: o.metrics,
        onError: o.onError,
    }
    for i := range l.live { l.live[i] = true }
    return l
}

// run iterates until ctx is cancelled (nil), no progress is possible (nil),
// or a fatal error occurs (returned).
func (l *loop[S]) run(ctx context.Context) error {
    // in-flight computation and dispatch are never interrupted
    work := context.WithoutCancel(ctx)
    if l.desc.Period > 0 { l.deadline = time.Now().Add(l.desc.Period) }
    for {
        if ctx.Err() != nil { return nil }

        cy, err := l.await(ctx)
        if errors.Is(err, errExhausted) {
            l.log.Info("all inputs closed, stopping")
            return nil
        }
        if err != nil { return err }
        if cy == nil { return nil }
        l.metrics.Cycles.WithLabelValues(l.name).Inc()

        outs, err := l.impl.Iterate(work, l.state, cy)
        if err != nil {
            if IsFatal(err) {
                l.report(errKindFatal, err, cy)
                return err
            }
            l.report(errKindCycle, err, cy)
            continue
        }
        l.dispatch(work, outs, cy)

        if l.outputsGone() {
            l.log.Info("all outputs closed, stopping")
            return nil
        }
    }
}

// await blocks in Idle until the gate fires, the period elapses or ctx is
// cancelled (nil cycle, nil error).
func (l *loop[S]) await(ctx context.Context) (*Cycle, error) {
    for {
        if len(l.ins) == 0 {
            // sources fire every cycle unless paced by the period timer
            if l.desc.Period == 0 {
                if ctx.Err() != nil { return nil, nil }
                return l.consume(nil), nil
            }
        } else if fire, idx := l.desc.Policy.Evaluate(l.tokens); fire {
            // a select that raced cancellation must not start a cycle
            if ctx.Err() != nil { return nil, nil }
            return l.consume(idx), nil
        } else if l.nlive == 0 {
            return nil, errExhausted
        }

        cases := make([]reflect.SelectCase, 0, len(l.ins)+2)
        index := make([]int, 0, len(l.ins))
        for i, in := range l.ins {
            if !l.live[i] || l.tokens[i].IsReady() { continue }
            cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(in.Receiver().C())})
            index = append(index, i)
        }
        nIn := len(cases)
        cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
        var timer *time.Timer
        if l.desc.Period > 0 {
            timer = time.NewTimer(time.Until(l.deadline))
            cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})
        }

        chosen, v, ok := reflect.Select(cases)
        if timer != nil { timer.Stop() }

        switch {
        case chosen < nIn:
            i := index[chosen]
            if !ok {
                if err := l.inputClosed(i); err != nil { return nil, err }
                continue
            }
            l.tokens[i] = channel.ReadyToken(v.Interface().(channel.Message))
        case chosen == nIn:
            return nil, nil
        default:
            if ctx.Err() != nil { return nil, nil }
            return l.timeout(), nil
        }
    }
}

func (l *loop[S]) consume(idx []int) *Cycle {
    l.seq++
    cy := &Cycle{Seq: l.seq, Inputs: make(map[string]channel.Message, len(idx)), Latch: l.latch}
    for _, i := range idx {
        name := l.ins[i].Name
        m := l.tokens[i].Msg
        l.tokens[i] = channel.Token{}
        cy.Inputs[name] = m
        l.latch.Update(name, m)
        if l.desc.Policy == AnyReady { cy.Trigger = name }
    }
    if l.desc.Period > 0 && !l.deadline.After(time.Now()) {
        l.deadline = time.Now().Add(l.desc.Period)
    }
    return cy
}

func (l *loop[S]) timeout() *Cycle {
    l.seq++
    l.deadline = l.deadline.Add(l.desc.Period)
    if now := time.Now(); !l.deadline.After(now) {
        l.deadline = now.Add(l.desc.Period)
    }
    return &Cycle{Seq: l.seq, TimedOut: true, Inputs: map[string]channel.Message{}, Latch: l.latch}
}

func (l *loop[S]) inputClosed(i int) error {
    l.live[i] = false
    l.nlive--
    name := l.ins[i].Name
    l.metrics.Errors.WithLabelValues(l.name, errKindClosed).Inc()
    if l.desc.Policy == AllReady {
        err := Fatal(fmt.Errorf("%w: %s", ErrInputClosed, name))
        l.log.Error("required input closed", zap.String("port", name))
        return err
    }
    l.log.Warn("input closed", zap.String("port", name), zap.Int("live", l.nlive))
    return nil
}

func (l *loop[S]) dispatch(ctx context.Context, outs Outputs, cy *Cycle) {
    if len(outs) == 0 { return }
    for _, op := range l.ports.Outputs() {
        v, ok := outs[op.Name]
        if !ok { continue }
        if l.deadOut[op.Name] {
            l.log.Debug("dropping value for closed output", zap.String("port", op.Name))
            continue
        }
        m, isMsg := v.(channel.Message)
        if !isMsg { m = channel.NewMessage(v) }
        if err := op.Sender().Send(ctx, m); err != nil {
            l.deadOut[op.Name] = true
            l.report(errKindOutput, fmt.Errorf("output %s: %w", op.Name, err), cy)
            continue
        }
        l.metrics.Dispatched.WithLabelValues(l.name, op.Name).Inc()
    }
    for name := range outs {
        if _, ok := l.ports.Output(name); !ok {
            l.report(errKindOutput, fmt.Errorf("%w: %q", ErrUnknownOutput, name), cy)
        }
    }
}

func (l *loop[S]) outputsGone() bool {
    outs := l.ports.Outputs()
    if len(outs) == 0 { return false }
    for _, op := range outs {
        if !l.deadOut[op.Name] && !op.Sender().Closed() { return false }
    }
    return true
}

func (l *loop[S]) report(kind string, err error, cy *Cycle) {
    l.metrics.Errors.WithLabelValues(l.name, kind).Inc()
    fields := []zap.Field{zap.String("kind", kind), zap.Uint64("cycle", cy.Seq), zap.Error(err)}
    if cy.Trigger != "" { fields = append(fields, zap.String("trigger", cy.Trigger)) }
    switch kind {
    case errKindFatal:
        l.log.Error("cycle failed", fields...)
    case errKindOutput:
        l.log.Warn("dispatch failed", fields...)
    default:
        l.log.Warn("cycle discarded", fields...)
    }
    if l.onError != nil { l.onError(err) }
}
