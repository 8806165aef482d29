// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves the identity service's metrics and health
// probes on a listener separate from the public API.
//
// Readiness combines two signals: whether the service has finished starting
// and is not draining, and whether every registered dependency check passes.
// Liveness only reports that the process answers HTTP.
package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds one readiness evaluation.
const DefaultCheckTimeout = 2 * time.Second

// Readiness report statuses.
const (
	StatusReady      = "ready"
	StatusNotReady   = "not_ready"
	StatusNotServing = "not_serving"

	checkOK   = "ok"
	checkFail = "fail"
)

// Check probes one dependency the service needs to answer requests.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Report is the readiness response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Ready reports whether the service should receive traffic.
func (r Report) Ready() bool { return r.Status == StatusReady }

// Metrics contains process-level identity service metrics.
type Metrics struct {
	BuildInfo    *prometheus.GaugeVec
	Ready        prometheus.Gauge
	DependencyUp *prometheus.GaugeVec
}

// NewMetrics creates and registers process-level metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "identity_build_info",
			Help: "Build information; the value is always 1",
		}, []string{"version"}),
		Ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "identity_ready",
			Help: "1 when the last readiness evaluation passed, 0 otherwise",
		}),
		DependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "identity_dependency_up",
			Help: "1 when the dependency passed its last readiness check",
		}, []string{"dependency"}),
	}
	reg.MustRegister(m.BuildInfo, m.Ready, m.DependencyUp)
	return m
}

// Option configures a Server.
type Option func(*Server)

// WithChecks adds dependency checks to readiness.
func WithChecks(checks ...Check) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithCollectors calls each register func once with the server's registry.
func WithCollectors(register ...func(prometheus.Registerer)) Option {
	return func(s *Server) { s.register = append(s.register, register...) }
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

// WithLogger sets the logger for server lifecycle and failed checks.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server serves /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr         string
	checks       []Check
	register     []func(prometheus.Registerer)
	checkTimeout time.Duration
	logger       *slog.Logger

	registry   *prometheus.Registry
	metrics    *Metrics
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
	serving    atomic.Bool
}

// NewServer creates a server listening on addr ("host:port"; port 0 picks a
// free one). It reports not ready until SetServing(true).
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		checkTimeout: DefaultCheckTimeout,
		logger:       slog.Default(),
		registry:     prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(s.registry)
	for _, fn := range s.register {
		fn(s.registry)
	}
	return s
}

// Metrics returns the process-level metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Registry returns the registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// SetServing marks whether the service accepts traffic. It is false until
// startup completes and again once draining begins.
func (s *Server) SetServing(serving bool) {
	s.serving.Store(serving)
	if !serving {
		s.metrics.Ready.Set(0)
	}
}

// Readiness runs every check concurrently within the check timeout.
func (s *Server) Readiness(ctx context.Context) Report {
	if !s.serving.Load() {
		s.metrics.Ready.Set(0)
		return Report{Status: StatusNotServing}
	}

	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	results := make([]error, len(s.checks))
	var g errgroup.Group
	for i, c := range s.checks {
		g.Go(func() error {
			results[i] = c.Probe(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusReady, Checks: make(map[string]string, len(s.checks))}
	for i, c := range s.checks {
		if err := results[i]; err != nil {
			report.Status = StatusNotReady
			report.Checks[c.Name] = checkFail
			s.metrics.DependencyUp.WithLabelValues(c.Name).Set(0)
			s.logger.WarnContext(ctx, "readiness check failed", "dependency", c.Name, "error", err)
			continue
		}
		report.Checks[c.Name] = checkOK
		s.metrics.DependencyUp.WithLabelValues(c.Name).Set(1)
	}

	if report.Ready() {
		s.metrics.Ready.Set(1)
	} else {
		s.metrics.Ready.Set(0)
	}
	return report
}

// Handler returns the observability routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/healthz/liveness", handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)
	return mux
}

// Start begins serving. The returned channel receives a serve failure and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight probes and scrapes.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_observability_server").Wrap(err)
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.Readiness(r.Context())

	status := http.StatusOK
	if !report.Ready() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(report)
}
