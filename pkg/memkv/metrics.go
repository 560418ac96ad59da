package memkv

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports a store's Stats. Values are read at scrape time.
type Metrics struct {
    Keys    prometheus.GaugeFunc
    Bytes   prometheus.GaugeFunc
    Expired prometheus.CounterFunc
}

// NewMetrics registers the store collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer, s *Store) *Metrics {
    f := promauto.With(reg)
    return &Metrics{
        Keys: f.NewGaugeFunc(prometheus.GaugeOpts{
            Namespace: "zflow", Subsystem: "state", Name: "keys",
            Help: "Live keys in the shared state store.",
        }, func() float64 { return float64(s.Stats().Keys) }),
        Bytes: f.NewGaugeFunc(prometheus.GaugeOpts{
            Namespace: "zflow", Subsystem: "state", Name: "bytes",
            Help: "Value bytes held by the shared state store.",
        }, func() float64 { return float64(s.Stats().Bytes) }),
        Expired: f.NewCounterFunc(prometheus.CounterOpts{
            Namespace: "zflow", Subsystem: "state", Name: "expired_total",
            Help: "Keys removed after their TTL ran out.",
        }, func() float64 { return float64(s.Stats().Expired) }),
    }
}
