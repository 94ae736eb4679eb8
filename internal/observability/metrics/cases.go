package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
)

// CaseMetrics observes the per-case worker lifecycle. It implements
// usecase.WorkerMetrics.
type CaseMetrics struct {
	service string

	casesTotal    *prometheus.CounterVec
	caseDuration  *prometheus.HistogramVec
	casesInFlight prometheus.Gauge
}

func NewCaseMetrics(service string, registry *prometheus.Registry) *CaseMetrics {
	casesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "processed_total",
			Help:      "Total processed cases by terminal status.",
		},
		[]string{"service", "status"},
	)
	caseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "processing_duration_seconds",
			Help:      "Case processing duration in seconds by terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"service", "status"},
	)
	casesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "in_flight",
			Help:      "Number of cases currently processing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(casesTotal, caseDuration, casesInFlight)

	return &CaseMetrics{
		service:       service,
		casesTotal:    casesTotal,
		caseDuration:  caseDuration,
		casesInFlight: casesInFlight,
	}
}

func (m *CaseMetrics) CaseStarted() {
	m.casesInFlight.Inc()
}

func (m *CaseMetrics) CaseFinished(status domain.CaseStatus, duration time.Duration) {
	m.casesInFlight.Dec()
	m.casesTotal.WithLabelValues(m.service, string(status)).Inc()
	m.caseDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}
