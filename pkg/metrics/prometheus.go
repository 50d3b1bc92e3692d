package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	signals     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	deployed    prometheus.Gauge
	deployedDay *prometheus.GaugeVec
}

// New creates the recorder and registers its collectors on reg, or on the
// default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_errors_total",
				Help: "Errors by kind",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signaldesk_operation_duration_seconds",
				Help:    "Duration of pipeline and lifecycle operations",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_signals_total",
				Help: "Signals produced per stage (raw, ensemble, persisted, ranked)",
			},
			[]string{"stage"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_transitions_total",
				Help: "Lifecycle transitions by entity and target status",
			},
			[]string{"entity", "status"},
		),
		deployed: f.NewGauge(prometheus.GaugeOpts{
			Name: "signaldesk_allocation_deployed_pct",
			Help: "Deployed share of capital in the latest allocation snapshot",
		}),
		deployedDay: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signaldesk_allocation_deployed_pct_by_date",
				Help: "Deployed share of capital per run date",
			},
			[]string{"date"},
		),
	}
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSignals(stage string, n int) {
	r.signals.WithLabelValues(stage).Add(float64(n))
}

func (r *Recorder) RecordTransition(entity, status string) {
	r.transitions.WithLabelValues(entity, status).Inc()
}

func (r *Recorder) RecordDeployed(date string, pct float64) {
	r.deployed.Set(pct)
	r.deployedDay.WithLabelValues(date).Set(pct)
}
