package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSignals("persisted", 4)
	r.RecordSignals("persisted", 1)
	r.RecordTransition("signal", "EXECUTED")
	r.RecordDeployed("2024-03-01", 37.5)

	if got := testutil.ToFloat64(r.signals.WithLabelValues("persisted")); got != 5 {
		t.Fatalf("signals: want 5, got %v", got)
	}
	if got := testutil.ToFloat64(r.transitions.WithLabelValues("signal", "EXECUTED")); got != 1 {
		t.Fatalf("transitions: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(r.deployed); got != 37.5 {
		t.Fatalf("deployed: want 37.5, got %v", got)
	}
}
