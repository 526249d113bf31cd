package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/contextgate/contextgate/internal/core/domain"
)

func TestMetrics_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun(&domain.Result{
		OK: true,
		Trace: []domain.TraceEntry{
			{Step: domain.StepSchema, OK: true},
			{Step: domain.StepRules, OK: true},
			{Step: domain.StepGuardrails, OK: true},
			{Step: domain.StepAI, OK: true},
		},
	}, 5*time.Millisecond)

	m.ObserveRun(&domain.Result{
		OK: false,
		Trace: []domain.TraceEntry{
			{Step: domain.StepSchema, OK: false},
		},
	}, time.Millisecond)

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok run, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("blocked")); got != 1 {
		t.Errorf("expected 1 blocked run, got %v", got)
	}
	if got := testutil.ToFloat64(m.stageBlocks.WithLabelValues("schema")); got != 1 {
		t.Errorf("expected schema block recorded, got %v", got)
	}
}
