// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/api"
	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/logging"
)

const serviceName = "facegate"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API server. Connects to the configured user store,
then serves the /api/auth and /api/face endpoints until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cmd, cfg, nil)
		},
	}
}

// runServeWithDeps runs the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, level)

	logger.Info("starting facegate",
		"addr", cfg.HTTP.Addr,
		"store_driver", cfg.Store.Driver,
		"dev_mode", cfg.DevMode,
	)

	users, closeStore, err := deps.StoreFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer closeStore()
	logger.Info("connected to user store", "driver", cfg.Store.Driver)

	mailer, err := deps.MailerFactory(cfg, logger)
	if err != nil {
		return oops.With("operation", "create mailer").Wrap(err)
	}

	encoder, err := deps.EncoderFactory(cfg)
	if err != nil {
		return oops.With("operation", "create face encoder").Wrap(err)
	}
	if encoder == nil {
		logger.Warn("no face encoder configured; face endpoints accept face_encoding only")
	}

	svc, err := auth.NewServiceWithLogger(auth.ServiceConfig{
		SigningSecret:     []byte(cfg.SigningSecret),
		TokenTTL:          cfg.TokenTTL,
		FaceTolerance:     cfg.FaceTolerance,
		ResetChallengeTTL: cfg.ResetChallengeTTL,
		ResetURL:          cfg.ResetURL,
	}, users, auth.NewArgon2idHasher(), mailer, logger)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	opts := api.Options{
		Encoder:     encoder,
		Logger:      logger,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		opts.Metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, svc, opts)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")
	ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("FaceGate listening on " + apiServer.Addr())
	logger.Info("facegate ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func stopObservability(s ObservabilityServer, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
