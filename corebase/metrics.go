package corebase

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMeter implements Meter by recording op durations as a
// service/op-labeled histogram and retries as a service/op-labeled
// counter, registered against whatever registerer the caller supplies
// (typically prometheus.DefaultRegisterer).
type PrometheusMeter struct {
	opDuration *prometheus.HistogramVec
	opErrors   *prometheus.CounterVec
	retries    *prometheus.CounterVec
}

// NewPrometheusMeter registers its metrics against reg and returns a ready
// Meter. Registering the same Meter against the same registry twice panics,
// matching prometheus.MustRegister's own contract.
func NewPrometheusMeter(reg prometheus.Registerer) *PrometheusMeter {
	m := &PrometheusMeter{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gocbcorex",
			Name:      "op_duration_seconds",
			Help:      "Duration of core operations by service and operation name.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"service", "op"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gocbcorex",
			Name:      "op_errors_total",
			Help:      "Count of core operations that returned an error, by service and operation name.",
		}, []string{"service", "op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gocbcorex",
			Name:      "op_retries_total",
			Help:      "Count of retry attempts, by service and operation name.",
		}, []string{"service", "op"}),
	}
	reg.MustRegister(m.opDuration, m.opErrors, m.retries)
	return m
}

func (m *PrometheusMeter) RecordOpDuration(service, opName string, durationNanos int64, err error) {
	m.opDuration.WithLabelValues(service, opName).Observe(time.Duration(durationNanos).Seconds())
	if err != nil {
		m.opErrors.WithLabelValues(service, opName).Inc()
	}
}

func (m *PrometheusMeter) RecordRetry(service, opName string) {
	m.retries.WithLabelValues(service, opName).Inc()
}
