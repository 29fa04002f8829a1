// Package metrics exposes processing counters in the Prometheus format.
package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes of a completion call.
const (
    OutcomeResult = "result"
    OutcomeRaw    = "raw"
    OutcomeError  = "error"
)

// Metrics holds the collectors of one session. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
    Registry *prometheus.Registry

    cycles      prometheus.Counter
    skipped     prometheus.Counter
    candidates  prometheus.Counter
    duplicates  prometheus.Counter
    completions *prometheus.CounterVec
    latency     prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
    m := &Metrics{
        Registry: prometheus.NewRegistry(),
        cycles: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "autodiscover_cycles_total",
            Help: "Processing cycles started.",
        }),
        skipped: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "autodiscover_cycles_skipped_total",
            Help: "Triggers dropped because a cycle was already running.",
        }),
        candidates: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "autodiscover_candidates_total",
            Help: "Candidate blocks considered.",
        }),
        duplicates: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "autodiscover_candidates_duplicate_total",
            Help: "Candidate blocks skipped because their text was already processed.",
        }),
        completions: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "autodiscover_completions_total",
            Help: "Completion calls by outcome.",
        }, []string{"outcome"}),
        latency: prometheus.NewHistogram(prometheus.HistogramOpts{
            Name:    "autodiscover_completion_seconds",
            Help:    "Completion call latency.",
            Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
        }),
    }
    m.Registry.MustRegister(m.cycles, m.skipped, m.candidates, m.duplicates, m.completions, m.latency)
    return m
}

// Gauge registers a gauge read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
    if m == nil {
        return
    }
    m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

func (m *Metrics) CycleStarted() {
    if m != nil {
        m.cycles.Inc()
    }
}

func (m *Metrics) CycleSkipped() {
    if m != nil {
        m.skipped.Inc()
    }
}

func (m *Metrics) Candidate() {
    if m != nil {
        m.candidates.Inc()
    }
}

func (m *Metrics) Duplicate() {
    if m != nil {
        m.duplicates.Inc()
    }
}

// Completed records one completion call.
func (m *Metrics) Completed(outcome string, took time.Duration) {
    if m == nil {
        return
    }
    m.completions.WithLabelValues(outcome).Inc()
    m.latency.Observe(took.Seconds())
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
    if m == nil {
        return http.NotFoundHandler()
    }
    return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
