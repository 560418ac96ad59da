package node

import (
    "context"
    "errors"
    "sync"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/port"
)

// Phase is the lifecycle state of a node.
type Phase int32

const (
    Uninitialized Phase = iota
    Ready
    Running
    Finalizing
    Terminated
)

func (p Phase) String() string {
    switch p {
    case Ready:
        return "ready"
    case Running:
        return "running"
    case Finalizing:
        return "finalizing"
    case Terminated:
        return "terminated"
    default:
        return "uninitialized"
    }
}

// Instance is the type-erased view of a Lifecycle the host drives.
type Instance interface {
    Name() string
    ID() string
    Kind() Kind
    Descriptor() Descriptor
    Phase() Phase
    Start(ctx context.Context) error
    Stop(ctx context.Context) error
    Done() <-chan struct{}
    Err() error
}

// Option customises a Lifecycle.
type Option func(*options)

type options struct {
    log     *zap.Logger
    metrics *Metrics
    onError func(error)
    id      string
}

// WithLogger sets the base logger; node fields are always attached.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithMetrics shares a Metrics value across nodes.
func WithMetrics(m *Metrics) Option { return func(o *options) { o.metrics = m } }

// WithErrorHandler is called for every error the loop reports, after logging.
func WithErrorHandler(fn func(error)) Option { return func(o *options) { o.onError = fn } }

// WithID overrides the generated instance id.
func WithID(id string) Option { return func(o *options) { o.id = id } }

// Lifecycle drives one node: Uninitialized → Ready → Running → Finalizing →
// Terminated.
type Lifecycle[S any] struct {
    desc     Descriptor
    impl     Node[S]
    cfg      config.Configuration
    provider port.Provider
    opts     options
    id       string
    log      *zap.Logger

    mu     sync.Mutex
    phase  Phase
    state  *S
    ports  *port.Set
    cancel context.CancelFunc
    err    error

    done     chan struct{}
    doneOnce sync.Once
    teardown sync.Once
}

var _ Instance = (*Lifecycle[Stateless])(nil)

// New validates desc and prepares a node. Nothing is acquired until Start.
func New[S any](desc Descriptor, impl Node[S], cfg config.Configuration, p port.Provider, opts ...Option) (*Lifecycle[S], error) {
    if err := desc.validate(); err != nil { return nil, err }
    if impl == nil || p == nil { return nil, errors.Join(ErrInvalidDescriptor, errors.New("nil node or port provider")) }
    o := options{}
    for _, opt := range opts { opt(&o) }
    if o.log == nil { o.log = zap.L() }
    if o.metrics == nil { o.metrics = NewMetrics(nil) }
    if o.id == "" { o.id = uuid.NewString() }
    return &Lifecycle[S]{
        desc:     desc,
        impl:     impl,
        cfg:      cfg,
        provider: p,
        opts:     o,
        id:       o.id,
        log:      o.log.With(zap.String("node", desc.Name), zap.String("node_id", o.id)),
        done:     make(chan struct{}),
    }, nil
}

func (l *Lifecycle[S]) Name() string { return l.desc.Name }
func (l *Lifecycle[S]) ID() string   { return l.id }
func (l *Lifecycle[S]) Kind() Kind   { return l.desc.Kind }

// Descriptor returns the static declaration.
func (l *Lifecycle[S]) Descriptor() Descriptor { return l.desc }

func (l *Lifecycle[S]) Phase() Phase {
    l.mu.Lock(); defer l.mu.Unlock()
    return l.phase
}

func (l *Lifecycle[S]) setPhase(p Phase) {
    l.mu.Lock(); l.phase = p; l.mu.Unlock()
    l.log.Debug("phase", zap.Stringer("phase", p))
}

// Done is closed once the node is Terminated.
func (l *Lifecycle[S]) Done() <-chan struct{} { return l.done }

// Err returns the terminal error: a setup failure, a fatal computation or
// closed-input error, or a teardown failure. Cancellation is not an error.
func (l *Lifecycle[S]) Err() error {
    l.mu.Lock(); defer l.mu.Unlock()
    return l.err
}

// Start binds ports, runs Setup and launches the Iteration Loop. A setup
// failure still runs Finalize before Start returns the *SetupError. ctx
// cancellation stops the node just like Stop.
func (l *Lifecycle[S]) Start(ctx context.Context) error {
    l.mu.Lock()
    if l.phase != Uninitialized || l.cancel != nil {
        l.mu.Unlock()
        return ErrAlreadyStarted
    }
    runCtx, cancel := context.WithCancel(ctx)
    l.cancel = cancel
    l.mu.Unlock()

    ports, err := port.Bind(l.desc.Ports, l.provider)
    if err != nil { return l.abort(ctx, err) }
    l.mu.Lock(); l.ports = ports; l.mu.Unlock()

    st, err := l.impl.Setup(ctx, l.cfg)
    l.mu.Lock(); l.state = st; l.mu.Unlock()
    if err != nil { return l.abort(ctx, err) }
    if st == nil { l.mu.Lock(); l.state = new(S); st = l.state; l.mu.Unlock() }
    l.setPhase(Ready)

    lp := newLoop(l.desc.Name, l.desc, l.impl, st, ports, l.opts, l.log)
    l.setPhase(Running)
    l.log.Info("node running",
        zap.Stringer("kind", l.desc.Kind), zap.Stringer("policy", l.desc.Policy),
        zap.Int("inputs", len(ports.Inputs())), zap.Int("outputs", len(ports.Outputs())))

    go func() {
        runErr := lp.run(runCtx)
        cancel()
        l.finish(ctx, runErr)
    }()
    return nil
}

func (l *Lifecycle[S]) abort(ctx context.Context, cause error) error {
    err := &SetupError{Node: l.desc.Name, Err: cause}
    l.log.Error("setup failed", zap.Error(cause))
    l.finish(ctx, err)
    l.cancel()
    return err
}

// finish runs teardown exactly once and moves to Terminated.
func (l *Lifecycle[S]) finish(ctx context.Context, cause error) {
    l.teardown.Do(func() {
        l.setPhase(Finalizing)
        l.mu.Lock(); st, ports := l.state, l.ports; l.mu.Unlock()
        ferr := l.impl.Finalize(context.WithoutCancel(ctx), st)
        ports.Close()
        if ferr != nil { l.log.Error("finalize failed", zap.Error(ferr)) }

        l.mu.Lock()
        l.err = errors.Join(cause, ferr)
        l.phase = Terminated
        l.mu.Unlock()
        if cause != nil {
            l.log.Error("node terminated", zap.Error(cause))
        } else {
            l.log.Info("node terminated")
        }
        l.doneOnce.Do(func() { close(l.done) })
    })
}

// Stop requests cancellation and waits until the node is Terminated or ctx
// expires. It returns the terminal error, if any. Stopping a node that never
// started releases nothing and runs no teardown.
func (l *Lifecycle[S]) Stop(ctx context.Context) error {
    l.mu.Lock()
    if l.phase == Uninitialized && l.cancel == nil {
        l.phase = Terminated
        l.mu.Unlock()
        l.doneOnce.Do(func() { close(l.done) })
        return nil
    }
    cancel := l.cancel
    l.mu.Unlock()

    cancel()
    select {
    case <-l.done:
        return l.Err()
    case <-ctx.Done():
        return ctx.Err()
    }
}
