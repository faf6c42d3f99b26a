package state

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Engine's Prometheus instrumentation, lazily initialised
// and registered exactly once per process (observability/metrics.go's
// sync.Once pattern).
type Metrics struct {
	blocksApplied  prometheus.Counter
	blocksRejected *prometheus.CounterVec
	rollbacks      prometheus.Counter
	applyDuration  prometheus.Histogram
}

var (
	defaultMetricsOnce sync.Once
	defaultMetricsReg  *Metrics
)

// DefaultMetrics returns the lazily-initialised, process-wide Engine metrics
// registered against the default Prometheus registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetricsReg = newMetrics()
		prometheus.MustRegister(
			defaultMetricsReg.blocksApplied,
			defaultMetricsReg.blocksRejected,
			defaultMetricsReg.rollbacks,
			defaultMetricsReg.applyDuration,
		)
	})
	return defaultMetricsReg
}

func newMetrics() *Metrics {
	return &Metrics{
		blocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boxchain",
			Subsystem: "state",
			Name:      "blocks_applied_total",
			Help:      "Total blocks committed by the state engine.",
		}),
		blocksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxchain",
			Subsystem: "state",
			Name:      "blocks_rejected_total",
			Help:      "Total blocks rejected by the state engine, by error kind.",
		}, []string{"kind"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boxchain",
			Subsystem: "state",
			Name:      "rollbacks_total",
			Help:      "Total rollback_to calls the state engine has completed.",
		}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boxchain",
			Subsystem: "state",
			Name:      "block_apply_seconds",
			Help:      "Latency distribution of ApplyBlock calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeApplied(seconds float64) {
	if m == nil {
		return
	}
	m.blocksApplied.Inc()
	m.applyDuration.Observe(seconds)
}

func (m *Metrics) observeRejected(kind string) {
	if m == nil {
		return
	}
	m.blocksRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}
