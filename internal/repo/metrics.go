// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package repo

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeOK              = "ok"
	OutcomeInvalidArgument = "invalid_argument"
	OutcomeNotFound        = "not_found"
	OutcomeConflict        = "conflict"
	OutcomeStoreFailure    = "store_failure"
)

// Metrics holds Prometheus collectors for repository operations.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates repository metrics and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynamicdb",
				Subsystem: "repository",
				Name:      "operations_total",
				Help:      "Repository operations by entity, operation and outcome.",
			},
			[]string{"entity", "operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dynamicdb",
				Subsystem: "repository",
				Name:      "operation_duration_seconds",
				Help:      "Repository operation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.OperationsTotal, m.OperationDuration)
	}
	return m
}

func (m *Metrics) observe(entity, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(entity, op, outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(entity, op).Observe(time.Since(started).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeStoreFailure
	}
}
