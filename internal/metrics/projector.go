// Package metrics exposes application metrics collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"poolindexer/internal/model"
)

var (
	projectorApplyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poolindexer",
		Subsystem: "projector",
		Name:      "apply_total",
		Help:      "Count of applied events by kind and result.",
	}, []string{"kind", "result"})

	projectorApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poolindexer",
		Subsystem: "projector",
		Name:      "apply_duration_seconds",
		Help:      "Duration of a single event apply.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)

// Projector tracks event apply outcomes.
type Projector struct{}

// NewProjector constructs a Projector.
func NewProjector() *Projector {
	return &Projector{}
}

// ObserveApply records one apply outcome and its duration.
func (Projector) ObserveApply(kind model.Kind, result string, elapsed time.Duration) {
	if result == "" {
		result = "unknown"
	}
	projectorApplyTotal.WithLabelValues(string(kind), result).Inc()
	projectorApplyDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}
