// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for operation metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Token check results.
const (
	TokenCheckValid   = "valid"
	TokenCheckExpired = "expired"
	TokenCheckInvalid = "invalid"
	TokenCheckRevoked = "revoked"
)

// Metrics holds the auth service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Operations  *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	TokenChecks *prometheus.CounterVec
	Purged      *prometheus.CounterVec
}

// NewMetrics creates and registers the auth metrics.
// Panics if registration fails (following prometheus convention).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streambox_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "streambox_auth_operation_duration_seconds",
				Help:    "Auth operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		TokenChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streambox_auth_token_checks_total",
				Help: "Total number of access token checks by result",
			},
			[]string{"result"},
		),
		Purged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streambox_auth_purged_total",
				Help: "Total number of rows removed or expired by the sweeper",
			},
			[]string{"store"},
		),
	}

	reg.MustRegister(m.Operations, m.Duration, m.TokenChecks, m.Purged)
	return m
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) tokenCheck(result string) {
	if m == nil {
		return
	}
	m.TokenChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) purged(store string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Purged.WithLabelValues(store).Add(float64(n))
}
