// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/auth/mocks"
)

func newLoggedFixture(t *testing.T) (*serviceFixture, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := &serviceFixture{
		store:  mocks.NewMockUserStore(t),
		hasher: mocks.NewMockPasswordHasher(t),
		mailer: mocks.NewMockMailer(t),
	}
	svc, err := auth.NewServiceWithLogger(testConfig(), f.store, f.hasher, f.mailer, logger)
	require.NoError(t, err)
	f.svc = svc
	return f, &buf
}

func TestService_LogsFailedPasswordUpgrade(t *testing.T) {
	f, buf := newLoggedFixture(t)
	legacy := &auth.User{ID: "u9", Email: "l@b.com", PasswordHash: "$2b$10$legacy"}
	f.store.On("FindByEmail", mock.Anything, "l@b.com").Return(legacy, nil)
	f.hasher.On("Verify", "abc12345", "$2b$10$legacy").Return(true, nil)
	f.hasher.On("NeedsUpgrade", "$2b$10$legacy").Return(true)
	f.hasher.On("Hash", "abc12345").Return("$argon2id$new", nil)
	f.store.On("UpdateFields", mock.Anything, "u9", mock.Anything).Return(errors.New("read only"))

	_, err := f.svc.LoginWithPassword(context.Background(), "l@b.com", "abc12345")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "password upgrade failed")
	assert.Contains(t, out, `"operation":"UpdateFields"`)
	assert.Contains(t, out, `"user_id":"u9"`)
}

func TestService_LogsMailFailure(t *testing.T) {
	f, buf := newLoggedFixture(t)
	f.store.On("FindByEmail", mock.Anything, "a@b.com").Return(&auth.User{ID: "u1", Email: "a@b.com", PasswordHash: "d"}, nil)
	f.store.On("UpdateFields", mock.Anything, "u1", mock.Anything).Return(nil)
	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp 421"))

	err := f.svc.ForgotPassword(context.Background(), auth.ForgotPasswordRequest{Email: "a@b.com", Method: auth.ResetMethodEmail})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "reset mail delivery failed")
	assert.Contains(t, out, "smtp 421")
	assert.Contains(t, out, `"code":"MAIL_SEND_FAILED"`)
	assert.Contains(t, out, `"user_id":"u1"`)
}

func TestService_DoesNotLogSecrets(t *testing.T) {
	f, buf := newLoggedFixture(t)
	f.store.On("FindByEmail", mock.Anything, "a@b.com").Return(nil, auth.ErrNotFound)
	f.hasher.On("Hash", "abc12345").Return("$argon2id$digest", nil)
	f.store.On("Insert", mock.Anything, mock.Anything).Return("u1", nil)

	_, err := f.svc.Register(context.Background(), auth.RegisterRequest{Email: "a@b.com", Password: "abc12345"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "user registered")
	assert.NotContains(t, out, "abc12345")
	assert.NotContains(t, out, "$argon2id$digest")
}
