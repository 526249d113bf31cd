package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/contextgate/contextgate/internal/core/domain"
)

// Metrics holds the Prometheus collectors for pipeline runs. It implements
// the pipeline's Observer interface.
type Metrics struct {
	runsTotal    *prometheus.CounterVec
	stageBlocks  *prometheus.CounterVec
	runDuration  prometheus.Histogram
	stagesPerRun prometheus.Histogram
}

// NewMetrics creates and registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextgate",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		stageBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contextgate",
			Name:      "stage_blocks_total",
			Help:      "Blocked runs by terminating stage.",
		}, []string{"stage"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contextgate",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		stagesPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contextgate",
			Name:      "stages_per_run",
			Help:      "Number of stages attempted per run.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
	}

	reg.MustRegister(m.runsTotal, m.stageBlocks, m.runDuration, m.stagesPerRun)
	return m
}

// ObserveRun records one completed pipeline run.
func (m *Metrics) ObserveRun(res *domain.Result, elapsed time.Duration) {
	outcome := "ok"
	if !res.OK {
		outcome = "blocked"
		if n := len(res.Trace); n > 0 {
			m.stageBlocks.WithLabelValues(res.Trace[n-1].Step).Inc()
		}
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.stagesPerRun.Observe(float64(len(res.Trace)))
}
