// Package metrics holds the Prometheus collectors for provisioning and
// upload authorization.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gophbucket"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNotFound = "not_found"
	OutcomeSkipped  = "skipped"
)

type Metrics struct {
	// ProvisionTotal counts finished provisioning runs by outcome.
	ProvisionTotal *prometheus.CounterVec
	// StepFailures counts failed pipeline steps.
	StepFailures *prometheus.CounterVec
	// ProvisionDuration observes end-to-end provisioning latency.
	ProvisionDuration prometheus.Histogram
	// UploadAuthorizations counts issued (or skipped) object authorizations.
	UploadAuthorizations *prometheus.CounterVec
	// PropagationRetries counts re-attempts made while waiting for the
	// provider to make a new resource visible.
	PropagationRetries *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProvisionTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provision_total",
				Help:      "Provisioning runs by outcome",
			},
			[]string{"outcome"},
		),
		StepFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provision_step_failures_total",
				Help:      "Provisioning pipeline step failures",
			},
			[]string{"step"},
		),
		ProvisionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provision_duration_seconds",
				Help:      "End-to-end provisioning latency",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		UploadAuthorizations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_authorizations_total",
				Help:      "Upload authorizations by outcome",
			},
			[]string{"outcome"},
		),
		PropagationRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "propagation_retries_total",
				Help:      "Retries while waiting for eventual consistency",
			},
			[]string{"step"},
		),
	}
}

// ObserveProvision records one finished run.
func (m *Metrics) ObserveProvision(started time.Time, err error, step string) {
	m.ProvisionDuration.Observe(time.Since(started).Seconds())
	if err == nil {
		m.ProvisionTotal.WithLabelValues(OutcomeSuccess).Inc()
		return
	}
	m.ProvisionTotal.WithLabelValues(OutcomeFailure).Inc()
	if step != "" {
		m.StepFailures.WithLabelValues(step).Inc()
	}
}
