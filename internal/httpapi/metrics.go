// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GateDecisions counts gate decisions by outcome and reason.
// Use RegisterMetrics to register this with a Prometheus registry.
var GateDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_gate_decisions_total",
		Help: "Total number of auth gate decisions by outcome and reason",
	},
	[]string{"outcome", "reason"},
)

// HTTPRequests counts completed API requests.
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_http_requests_total",
		Help: "Total number of API requests by method, route and status",
	},
	[]string{"method", "route", "status"},
)

// HTTPDuration observes API request latency.
var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "identity_http_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

// RegisterMetrics registers httpapi metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(GateDecisions)
	reg.MustRegister(HTTPRequests)
	reg.MustRegister(HTTPDuration)
}

func recordGateDecision(d Decision) {
	GateDecisions.WithLabelValues(d.Outcome.String(), d.Reason).Inc()
}

func recordRequest(method, route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
