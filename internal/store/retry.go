// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds startup connection attempts.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy gives a backend roughly half a minute to come up.
var DefaultRetryPolicy = RetryPolicy{Attempts: 6, Base: 250 * time.Millisecond, Max: 8 * time.Second}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(p.Max, b)
	return retry.WithMaxRetries(p.Attempts, b)
}

// WithRetry runs fn until it succeeds, the policy is exhausted or ctx ends.
// Every failure is treated as transient and logged at WARN.
func WithRetry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, operation string, fn func(context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			logger.WarnContext(ctx, "backend not ready",
				"operation", operation,
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("BACKEND_UNAVAILABLE").
			With("operation", operation).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// Connect opens a pgx pool and waits until the server answers a ping.
func Connect(ctx context.Context, logger *slog.Logger, policy RetryPolicy, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("POSTGRES_CONFIG_INVALID").Wrap(err)
	}
	if err := WithRetry(ctx, logger, policy, "postgres ping", pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
