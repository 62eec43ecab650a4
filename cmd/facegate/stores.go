// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/auth"
	mongostore "github.com/facegate/facegate/internal/auth/mongo"
	pgstore "github.com/facegate/facegate/internal/auth/postgres"
	redisstore "github.com/facegate/facegate/internal/auth/redis"
	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/internal/mail"
	"github.com/facegate/facegate/internal/store"
)

// openStore connects to the configured backend, retrying while it starts.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.UserStore, func(), error) {
	if cfg.Store.URL == "" {
		return nil, nil, oops.Code("CONFIG_INVALID").With("key", "store.url").Errorf("store.url is required")
	}
	policy := store.DefaultRetryPolicy

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, logger, policy, cfg.Store.URL)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewUserStore(pool), pool.Close, nil

	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, logger, policy, cfg.Store.URL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				logger.Warn("error disconnecting from mongo", "error", err)
			}
		}
		users := mongostore.NewUserStore(client.Database(cfg.Store.Database).Collection(mongostore.CollectionName))
		if err := users.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return users, closeFn, nil

	case config.DriverRedis:
		client, err := redisstore.Connect(ctx, logger, policy, cfg.Store.URL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		}
		return redisstore.NewUserStore(client, cfg.Store.Prefix), closeFn, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("key", "store.driver").
			Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newMailer returns an SMTP mailer, or in dev mode a mailer that prints to
// stderr.
func newMailer(cfg *config.Config, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.DevMode && cfg.SMTP.Host == "" {
		logger.Warn("dev mode: reset mail is printed to stderr, not sent")
		return mail.NewLogMailer(os.Stderr, logger), nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newEncoder returns the face encoder client, or nil when none is configured.
func newEncoder(cfg *config.Config) (face.Encoder, error) {
	if cfg.Encoder.URL == "" {
		return nil, nil
	}
	enc, err := face.NewHTTPEncoder(cfg.Encoder.URL, cfg.Encoder.Timeout)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
