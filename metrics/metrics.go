// Package metrics exposes Prometheus instrumentation for the staking
// application. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stakeberry"

type Metrics struct {
	Instructions    *prometheus.CounterVec
	BlocksCommitted prometheus.Counter
	Height          prometheus.Gauge
	PointsClaimed   prometheus.Counter
	CommitDuration  prometheus.Histogram
}

// New registers the collectors with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Instructions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "instructions_total",
			Help:      "Executed instructions by kind and result code",
		}, []string{"kind", "code"}),
		BlocksCommitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "app",
			Name:      "blocks_committed_total",
			Help:      "Number of committed blocks",
		}),
		Height: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "app",
			Name:      "committed_height",
			Help:      "Height of the last committed block",
		}),
		PointsClaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "points_claimed_total",
			Help:      "Points paid out by claim instructions",
		}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commit_duration_seconds",
			Help:      "Time spent persisting a committed block",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

// ObserveInstruction counts one executed instruction.
func (m *Metrics) ObserveInstruction(kind string, code uint32) {
	if m == nil {
		return
	}
	m.Instructions.WithLabelValues(kind, strconv.FormatUint(uint64(code), 10)).Inc()
}

// ObserveClaim adds claimed points.
func (m *Metrics) ObserveClaim(points uint64) {
	if m == nil {
		return
	}
	m.PointsClaimed.Add(float64(points))
}

// ObserveCommit records a committed block.
func (m *Metrics) ObserveCommit(height uint64, took time.Duration) {
	if m == nil {
		return
	}
	m.BlocksCommitted.Inc()
	m.Height.Set(float64(height))
	m.CommitDuration.Observe(took.Seconds())
}
