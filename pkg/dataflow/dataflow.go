// Package dataflow builds a set of node instances from a descriptor, wires
// their ports with channels (or encoded links) and runs them together.
package dataflow

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "time"

    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/channel"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/codec"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/link"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/pacer"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/transport"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/transport/mem"
)

var (
    ErrUnknownNode  = errors.New("dataflow: unknown node")
    ErrUnknownPort  = errors.New("dataflow: unknown port")
    ErrTypeMismatch = errors.New("dataflow: port types do not match")
    ErrFanIn        = errors.New("dataflow: input linked more than once")
    ErrUnconnected  = errors.New("dataflow: input not connected")
)

// Options carry the shared services a flow is built with. Zero values get
// defaults.
type Options struct {
    Registry    *registry.Store
    Env         registry.Env
    Codecs      *codec.Registry
    Types       *codec.Types
    Transports  *transport.Registry
    StopTimeout time.Duration
    Log         *zap.Logger
}

func (o *Options) defaults() error {
    if o.Registry == nil { return errors.New("dataflow: registry required") }
    if o.Codecs == nil {
        c, err := codec.NewRegistry()
        if err != nil { return err }
        o.Codecs = c
    }
    if o.Types == nil { o.Types = codec.NewTypes() }
    if o.Transports == nil { o.Transports = transport.NewRegistry(mem.New()) }
    if o.StopTimeout <= 0 { o.StopTimeout = 5 * time.Second }
    if o.Log == nil { o.Log = zap.L() }
    if o.Env.Log == nil { o.Env.Log = o.Log }
    return nil
}

// worker is a background task owned by the flow (links, fan-outs, drains).
type worker func(ctx context.Context) error

// Flow is a built dataflow ready to Run.
type Flow struct {
    name    string
    opts    Options
    log     *zap.Logger
    nodes   []node.Instance
    byName  map[string]node.Instance
    workers []worker
    links   []*link.Link
}

type nodeWiring struct {
    inst  node.Instance
    w     *port.Wiring
    ports map[string]port.Port // keyed by direction+name
    wired map[string]bool
}

func portKey(d port.Direction, name string) string { return d.String() + ":" + name }

// Build creates every node and connects the links. Nothing runs until Run.
func Build(cfg config.DataflowConfig, opts Options) (*Flow, error) {
    if err := opts.defaults(); err != nil { return nil, err }
    f := &Flow{
        name:   cfg.Name,
        opts:   opts,
        log:    opts.Log.With(zap.String("dataflow", cfg.Name)),
        byName: make(map[string]node.Instance, len(cfg.Nodes)),
    }
    capacity := cfg.ChannelCapacity
    if capacity <= 0 { capacity = channel.DefaultCapacity }

    wirings := make(map[string]*nodeWiring, len(cfg.Nodes))
    for _, nc := range cfg.Nodes {
        w := port.NewWiring()
        inst, err := opts.Registry.Create(nc.Kind, nc.ID, config.Configuration(nc.Config), w, opts.Env)
        if err != nil { return nil, err }
        nw := &nodeWiring{inst: inst, w: w, ports: map[string]port.Port{}, wired: map[string]bool{}}
        for _, p := range inst.Descriptor().Ports { nw.ports[portKey(p.Direction, p.Name)] = p }
        wirings[nc.ID] = nw
        f.nodes = append(f.nodes, inst)
        f.byName[nc.ID] = inst
    }

    // group links by producing endpoint, keeping descriptor order
    type hop struct {
        cfg      config.LinkConfig
        from, to config.Endpoint
        fromPort port.Port
        toPort   port.Port
    }
    var order []string
    groups := map[string][]hop{}
    for i, lc := range cfg.Links {
        from, err := config.ParseEndpoint(lc.From)
        if err != nil { return nil, fmt.Errorf("links[%d]: %w", i, err) }
        to, err := config.ParseEndpoint(lc.To)
        if err != nil { return nil, fmt.Errorf("links[%d]: %w", i, err) }
        src, dst := wirings[from.Node], wirings[to.Node]
        if src == nil { return nil, fmt.Errorf("%w: %s", ErrUnknownNode, from.Node) }
        if dst == nil { return nil, fmt.Errorf("%w: %s", ErrUnknownNode, to.Node) }
        fp, ok := src.ports[portKey(port.Output, from.Port)]
        if !ok { return nil, fmt.Errorf("%w: output %s", ErrUnknownPort, from) }
        tp, ok := dst.ports[portKey(port.Input, to.Port)]
        if !ok { return nil, fmt.Errorf("%w: input %s", ErrUnknownPort, to) }
        if !port.TypesMatch(tp.Type, fp.Type) {
            return nil, fmt.Errorf("%w: %s<%s> -> %s<%s>", ErrTypeMismatch, from, fp.Type, to, tp.Type)
        }
        if dst.wired[portKey(port.Input, to.Port)] { return nil, fmt.Errorf("%w: %s", ErrFanIn, to) }
        dst.wired[portKey(port.Input, to.Port)] = true
        if _, seen := groups[from.String()]; !seen { order = append(order, from.String()) }
        groups[from.String()] = append(groups[from.String()], hop{cfg: lc, from: from, to: to, fromPort: fp, toPort: tp})
    }

    for _, key := range order {
        hops := groups[key]
        src := wirings[hops[0].from.Node]
        var downstream []*channel.Sender
        for _, h := range hops {
            tx, err := f.connect(h.cfg, h.toPort, wirings[h.to.Node], capacity)
            if err != nil { return nil, err }
            downstream = append(downstream, tx)
        }
        fp := hops[0].fromPort
        if len(downstream) == 1 {
            if err := src.w.AddOutput(fp.Name, fp.Type, downstream[0]); err != nil { return nil, err }
        } else {
            tx, rx := channel.New(capacity)
            if err := src.w.AddOutput(fp.Name, fp.Type, tx); err != nil { return nil, err }
            f.workers = append(f.workers, fanout(rx, downstream))
        }
        src.wired[portKey(port.Output, fp.Name)] = true
    }

    // All-Ready inputs must be fed, Any-Ready ones start closed, unlinked
    // outputs are drained.
    for _, id := range sortedKeys(wirings) {
        nw := wirings[id]
        desc := nw.inst.Descriptor()
        for _, p := range desc.Ports {
            if nw.wired[portKey(p.Direction, p.Name)] { continue }
            if p.Direction == port.Input {
                if desc.Policy != node.AnyReady { return nil, fmt.Errorf("%w: %s.%s", ErrUnconnected, id, p.Name) }
                tx, rx := channel.New(1)
                tx.Close()
                if err := nw.w.AddInput(p.Name, p.Type, rx); err != nil { return nil, err }
                f.log.Info("input not linked, port starts closed", zap.String("node", id), zap.String("port", p.Name))
                continue
            }
            tx, rx := channel.New(capacity)
            if err := nw.w.AddOutput(p.Name, p.Type, tx); err != nil { return nil, err }
            f.workers = append(f.workers, drain(rx))
            f.log.Info("output not linked, values are discarded", zap.String("node", id), zap.String("port", p.Name))
        }
    }
    return f, nil
}

// connect creates the consumer side of one link and returns the sender the
// producer (or a fan-out) writes to.
func (f *Flow) connect(lc config.LinkConfig, to port.Port, dst *nodeWiring, capacity int) (*channel.Sender, error) {
    if lc.Capacity > 0 { capacity = lc.Capacity }
    kind, err := transport.ParseKind(lc.Transport)
    if err != nil { return nil, err }
    tx, rx := channel.New(capacity)
    if err := dst.w.AddInput(to.Name, to.Type, rx); err != nil { return nil, err }
    if kind == transport.KindLocal { return tx, nil }

    tr, err := f.opts.Transports.Lookup(kind)
    if err != nil { return nil, err }
    c, err := f.opts.Codecs.Lookup(lc.Codec)
    if err != nil { return nil, err }
    var bucket *pacer.Bucket
    if lc.Rate > 0 { bucket = pacer.NewBucket(lc.Rate, 0) }
    l, err := link.New(link.Options{
        Name:  fmt.Sprintf("%s/%s->%s", f.name, lc.From, lc.To),
        Codec: c,
        Types: f.opts.Types,
        Type:  to.Type,
        Pacer: bucket,
        Log:   f.log,
    })
    if err != nil { return nil, err }
    ptx, prx := channel.New(capacity)
    f.links = append(f.links, l)
    f.workers = append(f.workers, func(ctx context.Context) error { return l.Run(ctx, tr, prx, tx) })
    return ptx, nil
}

// Instance returns a built node by name.
func (f *Flow) Instance(name string) (node.Instance, bool) {
    inst, ok := f.byName[name]
    return inst, ok
}

// Instances returns the nodes in descriptor order.
func (f *Flow) Instances() []node.Instance { return append([]node.Instance(nil), f.nodes...) }

// Links returns the encoded links of the flow.
func (f *Flow) Links() []*link.Link { return append([]*link.Link(nil), f.links...) }

// Run starts every node and blocks until all of them terminate, one fails,
// or ctx is cancelled. The first node failure is returned; the remaining
// nodes are stopped in any case.
func (f *Flow) Run(ctx context.Context) error {
    g, gctx := errgroup.WithContext(ctx)
    for _, w := range f.workers {
        w := w
        g.Go(func() error { return w(gctx) })
    }

    started := make([]node.Instance, 0, len(f.nodes))
    var startErr error
    for _, inst := range f.nodes {
        if err := inst.Start(gctx); err != nil {
            startErr = fmt.Errorf("start %s: %w", inst.Name(), err)
            break
        }
        started = append(started, inst)
    }
    f.log.Info("dataflow running", zap.Int("nodes", len(started)), zap.Int("links", len(f.links)))

    for _, inst := range started {
        inst := inst
        g.Go(func() error { return f.watch(gctx, inst) })
    }
    if startErr != nil {
        f.log.Error("dataflow start failed", zap.Error(startErr))
        f.stopAll(started)
        // nodes that never started are marked terminated
        for _, inst := range f.nodes { _ = inst.Stop(context.Background()) }
        g.Go(func() error { return startErr })
    }

    err := g.Wait()
    f.opts.Registry.Refresh()
    if errors.Is(err, context.Canceled) && ctx.Err() != nil { err = nil }
    if err != nil {
        f.log.Error("dataflow stopped", zap.Error(err))
    } else {
        f.log.Info("dataflow stopped")
    }
    return err
}

// watch reports a node failure, or stops the node once the flow is done.
func (f *Flow) watch(ctx context.Context, inst node.Instance) error {
    select {
    case <-inst.Done():
        if ctx.Err() != nil { return nil }
        if err := inst.Err(); err != nil { return fmt.Errorf("node %s: %w", inst.Name(), err) }
        return nil
    case <-ctx.Done():
        sctx, cancel := context.WithTimeout(context.Background(), f.opts.StopTimeout)
        defer cancel()
        if err := inst.Stop(sctx); err != nil {
            f.log.Debug("node stopped with error", zap.String("node", inst.Name()), zap.Error(err))
        }
        return nil
    }
}

func (f *Flow) stopAll(insts []node.Instance) {
    sctx, cancel := context.WithTimeout(context.Background(), f.opts.StopTimeout)
    defer cancel()
    for _, inst := range insts { _ = inst.Stop(sctx) }
}

func sortedKeys[V any](m map[string]V) []string {
    out := make([]string, 0, len(m))
    for k := range m { out = append(out, k) }
    sort.Strings(out)
    return out
}
