// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// Metrics contains the FaceGate Prometheus metrics.
type Metrics struct {
	AuthAttemptsTotal   *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the FaceGate metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facegate_auth_attempts_total",
				Help: "Total number of authentication operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facegate_http_requests_total",
				Help: "Total number of API requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "facegate_http_request_duration_seconds",
				Help:    "API request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(m.AuthAttemptsTotal, m.HTTPRequestsTotal, m.HTTPRequestDuration)

	return m
}

// RecordAuthAttempt counts one auth operation. result is "success" or the
// error code that ended it. A nil receiver is a no-op.
func (m *Metrics) RecordAuthAttempt(operation, result string) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(operation, result).Inc()
}

// RecordRequest counts one API request and observes its latency.
// A nil receiver is a no-op.
func (m *Metrics) RecordRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Health check paths served next to /metrics.
const (
	LivenessPath  = "/healthz/liveness"
	ReadinessPath = "/healthz/readiness"
)

// Server serves /metrics and the health checks on their own listener, away
// from the public API.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker
	running  atomic.Bool

	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates an observability server for addr ("127.0.0.1:9100",
// ":9100", or port 0 in tests). A nil readinessChecker reports ready.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := NewRegistry()
	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// NewRegistry returns a registry holding the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Metrics returns the metrics registered on this server's registry.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the router for the observability endpoints.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})).Methods(http.MethodGet)
	router.HandleFunc(LivenessPath, health(nil)).Methods(http.MethodGet)
	router.HandleFunc(ReadinessPath, health(s.isReady)).Methods(http.MethodGet)
	return router
}

// Start listens and serves in the background. Errors after Start returns
// arrive on the channel, which is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = listener
	s.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server error", "error", err)
			errCh <- err
		}
	}()

	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown observability server").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type healthStatus struct {
	Status string `json:"status"`
}

// health answers 200 {"status":"ok"} while ready reports true (or is nil) and
// 503 {"status":"not_ready"} otherwise.
func health(ready ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, body := http.StatusOK, healthStatus{Status: "ok"}
		if ready != nil && !ready() {
			status, body = http.StatusServiceUnavailable, healthStatus{Status: "not_ready"}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
