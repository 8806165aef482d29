// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Flow names and outcomes for AccountFlows.
const (
	FlowSignup      = "signup"
	FlowSetPassword = "set_password"
	FlowSignin      = "signin"
	FlowCreate      = "create"

	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// AccountFlows counts account flow completions by flow and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var AccountFlows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_account_flow_total",
		Help: "Total number of account flow completions",
	},
	[]string{"flow", "outcome"},
)

// HashDuration observes how long password hash operations take, including
// time spent waiting for a worker.
var HashDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "identity_password_hash_duration_seconds",
		Help:    "Password hash and verify duration in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	},
	[]string{"op"},
)

// HashInFlight is the number of hash operations currently holding a worker.
var HashInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "identity_password_hash_in_flight",
		Help: "Password hash operations currently running",
	},
)

// RegisterMetrics registers auth package metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AccountFlows)
	reg.MustRegister(HashDuration)
	reg.MustRegister(HashInFlight)
}

func recordFlow(flow, outcome string) {
	AccountFlows.WithLabelValues(flow, outcome).Inc()
}

func recordHashDuration(op string, d time.Duration) {
	HashDuration.WithLabelValues(op).Observe(d.Seconds())
}
