package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	QuoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signaldesk",
			Subsystem: "quotes",
			Name:      "latency_seconds",
			Help:      "Latency of upstream quote lookups",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	QuoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signaldesk",
			Subsystem: "quotes",
			Name:      "requests_total",
			Help:      "Quote lookups by source and result (hit, ok, error)",
		},
		[]string{"source", "result"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(QuoteLatency, QuoteRequests)
	})
}
