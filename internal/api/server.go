// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package api exposes the authentication service over HTTP+JSON.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/internal/observability"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Options configures the API handler.
type Options struct {
	// Encoder turns face images into encodings. Without one, requests must
	// send face_encoding instead of face_image.
	Encoder face.Encoder
	// Metrics may be nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string
}

// NewHandler builds the API router with its middleware.
func NewHandler(svc AuthService, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &authAPI{svc: svc, encoder: opts.Encoder, metrics: opts.Metrics, logger: logger}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware, metricsMiddleware(opts.Metrics), accessLogMiddleware(logger))

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, response{Message: "not found"})
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, response{Message: "method not allowed"})
	})
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = notAllowed

	a := router.PathPrefix("/api/auth").Subrouter()
	a.NotFoundHandler, a.MethodNotAllowedHandler = notFound, notAllowed
	a.HandleFunc("/register", h.wrap("register", h.register)).Methods(http.MethodPost)
	a.HandleFunc("/login", h.wrap("login", h.login)).Methods(http.MethodPost)
	a.HandleFunc("/forgot-password", h.wrap("forgot_password", h.forgotPassword)).Methods(http.MethodPost)
	a.HandleFunc("/verify-reset-code", h.wrap("verify_reset_code", h.verifyResetCode)).Methods(http.MethodPost)
	a.HandleFunc("/reset-password", h.wrap("reset_password", h.resetPassword)).Methods(http.MethodPost)
	a.HandleFunc("/verify-token", h.wrap("verify_token", h.verifyToken)).Methods(http.MethodPost, http.MethodGet)

	// update and delete act on the bearer token's account.
	f := router.PathPrefix("/api/face").Subrouter()
	f.NotFoundHandler, f.MethodNotAllowedHandler = notFound, notAllowed
	f.HandleFunc("/update", h.wrap("face_update", h.updateFace)).Methods(http.MethodPost)
	f.HandleFunc("/delete", h.wrap("face_delete", h.deleteFace)).Methods(http.MethodDelete)
	f.HandleFunc("/verify", h.wrap("face_verify", h.verifyFace)).Methods(http.MethodPost)

	var handler http.Handler = router
	if len(opts.CORSOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", RequestIDHeader}),
			handlers.ExposedHeaders([]string{RequestIDHeader}),
		)(handler)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(true),
	)(handler)
}

// Server serves the API on its own listener.
type Server struct {
	addr       string
	handler    http.Handler
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates an API server for addr.
func NewServer(addr string, svc AuthService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{addr: addr, handler: NewHandler(svc, opts), logger: opts.Logger}
}

// Start listens and serves in the background. The returned channel receives
// a serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
