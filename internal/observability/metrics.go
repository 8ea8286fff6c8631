// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gymcrm/gymcrm/internal/auth"
)

// Metrics holds the GymCRM Prometheus collectors. It implements
// auth.Recorder.
type Metrics struct {
	Registrations   prometheus.Counter
	LoginAttempts   *prometheus.CounterVec
	AccountLocks    prometheus.Counter
	PasswordChanges prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymcrm_user_registrations_total",
			Help: "Total number of registered users",
		}),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymcrm_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AccountLocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymcrm_account_locks_total",
			Help: "Total number of accounts locked after repeated failures",
		}),
		PasswordChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymcrm_password_changes_total",
			Help: "Total number of successful password changes",
		}),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gymcrm_grpc_requests_total",
				Help: "Total number of gRPC requests by method and status code",
			},
			[]string{"method", "code"},
		),
	}

	reg.MustRegister(
		m.Registrations,
		m.LoginAttempts,
		m.AccountLocks,
		m.PasswordChanges,
		m.RequestsTotal,
	)
	return m
}

// UserRegistered implements auth.Recorder.
func (m *Metrics) UserRegistered() { m.Registrations.Inc() }

// LoginAttempt implements auth.Recorder.
func (m *Metrics) LoginAttempt(outcome auth.LoginOutcome) {
	m.LoginAttempts.WithLabelValues(string(outcome)).Inc()
}

// AccountLocked implements auth.Recorder.
func (m *Metrics) AccountLocked() { m.AccountLocks.Inc() }

// PasswordChanged implements auth.Recorder.
func (m *Metrics) PasswordChanged() { m.PasswordChanges.Inc() }

// RecordRequest counts one finished RPC.
func (m *Metrics) RecordRequest(method, code string) {
	m.RequestsTotal.WithLabelValues(method, code).Inc()
}

var _ auth.Recorder = (*Metrics)(nil)
