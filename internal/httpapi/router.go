// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi is the HTTP surface of the identity service: the auth gate,
// the account routes and their error mapping.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/propagation"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const routeUnmatched = "unmatched"

// NewRouter wires the account routes behind the gate. Every request is
// classified by the gate before routing, then logged and measured.
func NewRouter(h *Handlers, gate *Gate, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := mux.NewRouter()
	router.HandleFunc("/auth", h.Signup).Methods(http.MethodPost)
	router.HandleFunc("/signup", h.Signup).Methods(http.MethodPost)
	router.HandleFunc("/setpassword", h.SetPassword).Methods(http.MethodPost)
	router.HandleFunc("/signin", h.Signin).Methods(http.MethodPost)
	router.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	router.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	return instrument(router, gate.Middleware(router), logger)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b) //nolint:wrapcheck // pass-through writer
}

// instrument assigns a request id, adopts an incoming W3C trace context,
// recovers panics and records one log line and one metric sample per request.
//
// router is only consulted for the route template used as the metric label.
func instrument(router *mux.Router, next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if _, err := ulid.ParseStrict(id); err != nil {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := propagation.TraceContext{}.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		r = r.WithContext(withRequestID(ctx, id))

		route := routeUnmatched
		var match mux.RouteMatch
		if router.Match(r, &match) && match.Route != nil {
			if tpl, err := match.Route.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				logger.ErrorContext(r.Context(), "panic serving request",
					"panic", p,
					"request_id", id,
					"path", r.URL.Path)
				if rec.status == 0 {
					writeJSON(rec, http.StatusInternalServerError, errorBody{Error: MsgInternal})
				}
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			recordRequest(r.Method, route, status, elapsed)
			logger.InfoContext(r.Context(), "request completed",
				"method", r.Method,
				"route", route,
				"status", status,
				"duration", elapsed,
				"request_id", id)
		}()

		next.ServeHTTP(rec, r)
	})
}
