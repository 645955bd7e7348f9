package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"poolindexer/internal/model"
)

var (
	coordinatorFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolindexer",
		Subsystem: "coordinator",
		Name:      "fetch_range_total",
		Help:      "Count of historical range queries by kind and status.",
	}, []string{"kind", "status"})

	coordinatorFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poolindexer",
		Subsystem: "coordinator",
		Name:      "fetch_range_duration_seconds",
		Help:      "Duration of historical range queries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "status"})

	coordinatorDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolindexer",
		Subsystem: "coordinator",
		Name:      "dropped_events_total",
		Help:      "Count of events skipped after a failed apply, by kind and reason.",
	}, []string{"kind", "reason"})

	coordinatorReconnectTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "poolindexer",
		Subsystem: "coordinator",
		Name:      "reconnect_total",
		Help:      "Count of live subscription reconnect attempts.",
	})

	coordinatorWatermark = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "poolindexer",
		Subsystem: "coordinator",
		Name:      "watermark_block",
		Help:      "Highest block whose events are fully applied.",
	})

	coordinatorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "poolindexer",
		Subsystem: "coordinator",
		Name:      "state",
		Help:      "Current coordinator state, 1 for the active state.",
	}, []string{"state"})
)

// Coordinator tracks ingestion progress.
type Coordinator struct {
	states []string
}

// NewCoordinator constructs a Coordinator for the given state names.
func NewCoordinator(states ...string) *Coordinator {
	return &Coordinator{states: states}
}

// ObserveFetch records a range query outcome and duration.
func (Coordinator) ObserveFetch(kind model.Kind, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	coordinatorFetchTotal.WithLabelValues(string(kind), status).Inc()
	coordinatorFetchDuration.WithLabelValues(string(kind), status).Observe(time.Since(started).Seconds())
}

// ObserveDropped records an event skipped after apply failed.
func (Coordinator) ObserveDropped(kind model.Kind, reason string) {
	coordinatorDroppedTotal.WithLabelValues(string(kind), reason).Inc()
}

// ObserveReconnect records a live reconnect attempt.
func (Coordinator) ObserveReconnect() {
	coordinatorReconnectTotal.Inc()
}

// SetWatermark publishes the current watermark.
func (Coordinator) SetWatermark(block uint64) {
	coordinatorWatermark.Set(float64(block))
}

// SetState marks state active and every other known state inactive.
func (c Coordinator) SetState(state string) {
	for _, s := range c.states {
		v := 0.0
		if s == state {
			v = 1
		}
		coordinatorState.WithLabelValues(s).Set(v)
	}
}
