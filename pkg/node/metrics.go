package node

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the per-node counters. One Metrics value is shared by every
// node registered on the same registry.
type Metrics struct {
    Cycles     *prometheus.CounterVec
    Errors     *prometheus.CounterVec
    Dispatched *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
    f := promauto.With(reg)
    return &Metrics{
        Cycles: f.NewCounterVec(prometheus.CounterOpts{
            Namespace: "zflow", Subsystem: "node", Name: "cycles_total",
            Help: "Resolved iteration cycles.",
        }, []string{"node"}),
        Errors: f.NewCounterVec(prometheus.CounterOpts{
            Namespace: "zflow", Subsystem: "node", Name: "errors_total",
            Help: "Errors reported by the iteration loop, by kind.",
        }, []string{"node", "kind"}),
        Dispatched: f.NewCounterVec(prometheus.CounterOpts{
            Namespace: "zflow", Subsystem: "node", Name: "dispatched_total",
            Help: "Messages dispatched to output ports.",
        }, []string{"node", "port"}),
    }
}

// error kinds
const (
    errKindCycle  = "cycle"
    errKindOutput = "output"
    errKindClosed = "closed"
    errKindFatal  = "fatal"
)
