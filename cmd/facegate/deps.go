package main

import (
	"context"
	"log/slog"

	"github.com/facegate/facegate/internal/api"
	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the configured user store. The returned func
	// releases it.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.UserStore, func(), error)

	// MailerFactory builds the outbound mailer.
	// Default: newMailer
	MailerFactory func(cfg *config.Config, logger *slog.Logger) (auth.Mailer, error)

	// EncoderFactory builds the face encoder client. A nil encoder is allowed.
	// Default: newEncoder
	EncoderFactory func(cfg *config.Config) (face.Encoder, error)

	// APIServerFactory creates the API server.
	// Default: api.NewServer
	APIServerFactory func(addr string, svc api.AuthService, opts api.Options) APIServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// APIServer wraps the methods used from api.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreFactory == nil {
		out.StoreFactory = openStore
	}
	if out.MailerFactory == nil {
		out.MailerFactory = newMailer
	}
	if out.EncoderFactory == nil {
		out.EncoderFactory = newEncoder
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, svc api.AuthService, opts api.Options) APIServer {
			return api.NewServer(addr, svc, opts)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	return &out
}
