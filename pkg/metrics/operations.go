package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oneman"

// OperationMetrics records duration and outcome of named operations within a
// subsystem (ledger, outbox, ...).
type OperationMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewOperationMetrics registers the subsystem metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOperationMetrics(reg prometheus.Registerer, subsystem string) *OperationMetrics {
	if reg == nil {
		return &OperationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "operation_duration_seconds",
		Help:      "Duration of operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "operation_success_total",
		Help:      "Successful operations.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "operation_failure_total",
		Help:      "Failed operations.",
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "operation_retries_total",
		Help:      "Operations retried after a concurrent write.",
	}, []string{"operation"})
	reg.MustRegister(duration, success, failure, retries)
	return &OperationMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		retries:  retries,
	}
}

// ObserveDuration records the duration for the named operation.
func (m *OperationMetrics) ObserveDuration(op string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(op)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named operation.
func (m *OperationMetrics) IncSuccess(op string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncFailure increments the failure counter for the named operation.
func (m *OperationMetrics) IncFailure(op string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncRetry counts one optimistic-lock retry.
func (m *OperationMetrics) IncRetry(op string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(op)).Inc()
}

// Track starts a timer; the returned func records duration and outcome.
func (m *OperationMetrics) Track(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		m.ObserveDuration(op, time.Since(start))
		if err != nil {
			m.IncFailure(op)
			return
		}
		m.IncSuccess(op)
	}
}

func normalizeLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}
