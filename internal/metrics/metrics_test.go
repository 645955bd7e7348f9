package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"poolindexer/internal/model"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestProjectorRecords(t *testing.T) {
	m := NewProjector()

	if inc := delta(t, projectorApplyTotal.WithLabelValues("PoolCreated", "created"), func() {
		m.ObserveApply(model.KindPoolCreated, "created", time.Millisecond)
	}); inc != 1 {
		t.Fatalf("expected apply counter increment, got %v", inc)
	}

	if inc := delta(t, projectorApplyTotal.WithLabelValues("Deposited", "unknown"), func() {
		m.ObserveApply(model.KindDeposited, "", time.Millisecond)
	}); inc != 1 {
		t.Fatalf("expected unknown result increment, got %v", inc)
	}
}

func TestCoordinatorRecords(t *testing.T) {
	m := NewCoordinator("idle", "backfilling", "live")
	start := time.Now().Add(-time.Second)

	if inc := delta(t, coordinatorFetchTotal.WithLabelValues("PoolFinished", "error"), func() {
		m.ObserveFetch(model.KindPoolFinished, errors.New("boom"), start)
	}); inc != 1 {
		t.Fatalf("expected fetch error increment, got %v", inc)
	}

	if inc := delta(t, coordinatorDroppedTotal.WithLabelValues("Deposited", "invalid"), func() {
		m.ObserveDropped(model.KindDeposited, "invalid")
	}); inc != 1 {
		t.Fatalf("expected dropped increment, got %v", inc)
	}

	if inc := delta(t, coordinatorReconnectTotal, m.ObserveReconnect); inc != 1 {
		t.Fatalf("expected reconnect increment, got %v", inc)
	}

	m.SetWatermark(1234)
	if got := testutil.ToFloat64(coordinatorWatermark); got != 1234 {
		t.Fatalf("watermark gauge = %v", got)
	}

	m.SetState("live")
	if got := testutil.ToFloat64(coordinatorState.WithLabelValues("live")); got != 1 {
		t.Fatalf("live state gauge = %v", got)
	}
	if got := testutil.ToFloat64(coordinatorState.WithLabelValues("idle")); got != 0 {
		t.Fatalf("idle state gauge = %v", got)
	}
}
