package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "text/tabwriter"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/config"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/dataflow"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/memkv"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/node"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/nodes"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/observability"
    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/registry"
)

// RunCmd runs a dataflow.
type RunCmd struct {
    Config      string        `short:"c" help:"Path to YAML config file." type:"path" env:"ZFLOW_CONFIG"`
    LogLevel    string        `help:"Override log level (debug, info, warn, error)."`
    MetricsAddr string        `help:"Serve Prometheus metrics on this address (empty = off)." placeholder:"HOST:PORT"`
    StopTimeout time.Duration `help:"Time each node gets to finish when stopping." default:"5s"`
}

func (c *RunCmd) Run() error {
    cfg, err := config.Load(c.Config)
    if err != nil { return fmt.Errorf("load config: %w", err) }
    if c.LogLevel != "" { cfg.Log.Level = c.LogLevel }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil { return fmt.Errorf("setup logger: %w", err) }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("flownode started", zap.String("app", cfg.AppName), zap.String("dataflow", cfg.Dataflow.Name))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    if c.MetricsAddr != "" {
        srv := serveMetrics(c.MetricsAddr, reg)
        defer func() {
            sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
            defer cancel()
            _ = srv.Shutdown(sctx)
        }()
    }

    kv := memkv.New(memkv.Options{
        Shards:        cfg.State.Shards,
        MaxBytes:      cfg.State.MaxBytes,
        SweepInterval: cfg.State.SweepInterval,
    })
    defer kv.Close()
    memkv.NewMetrics(reg, kv)
    kinds, err := newKinds(kv)
    if err != nil { return err }
    kinds.RetainTerminated(cfg.State.RecordRetention)

    flow, err := dataflow.Build(cfg.Dataflow, dataflow.Options{
        Registry:    kinds,
        Env:         registry.Env{Store: kv, Log: logger, Metrics: node.NewMetrics(reg)},
        StopTimeout: c.StopTimeout,
        Log:         logger,
    })
    if err != nil { return fmt.Errorf("build dataflow: %w", err) }

    zap.L().Info("dataflow is running; press Ctrl+C to exit")
    runErr := flow.Run(ctx)
    summarize(flow, kinds, kv)
    return runErr
}

// summarize logs what the run left behind: node records, link counters and
// the state store.
func summarize(flow *dataflow.Flow, kinds *registry.Store, kv *memkv.Store) {
    kinds.Refresh()
    for _, d := range kinds.Instances() {
        zap.L().Info("node summary",
            zap.String("node", d.Name), zap.String("kind", d.Kind),
            zap.String("phase", d.Phase), zap.String("error", d.Error),
            zap.Duration("expires_in", d.ExpiresIn))
    }
    for _, l := range flow.Links() {
        st := l.Stats()
        zap.L().Info("link summary", zap.String("link", l.Name()),
            zap.Uint64("sent", st.Sent), zap.Uint64("received", st.Received), zap.Uint64("dropped", st.Dropped))
    }
    st := kv.Stats()
    zap.L().Info("state summary", zap.Int("keys", st.Keys), zap.Uint64("bytes", st.Bytes), zap.Uint64("expired", st.Expired))
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
    srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
    go func() {
        zap.L().Info("metrics listening", zap.String("addr", addr))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            zap.L().Error("metrics server failed", zap.Error(err))
        }
    }()
    return srv
}

func newKinds(kv *memkv.Store) (*registry.Store, error) {
    r := registry.NewStore(kv)
    if err := nodes.Register(r); err != nil { return nil, fmt.Errorf("register node kinds: %w", err) }
    return r, nil
}

// KindsCmd lists node kinds.
type KindsCmd struct{}

func (KindsCmd) Run() error {
    r, err := newKinds(nil)
    if err != nil { return err }
    tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
    fmt.Fprintln(tw, "KIND\tDESCRIPTION")
    for _, k := range r.Kinds() { fmt.Fprintf(tw, "%s\t%s\n", k.Name, k.Summary) }
    return tw.Flush()
}
