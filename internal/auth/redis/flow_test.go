// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package redis_test

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/auth/mocks"
	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/pkg/errutil"
)

var linkPattern = regexp.MustCompile(`http://localhost/reset\?\S+`)

func newFlowService(t *testing.T) (*auth.Service, *mocks.MockMailer) {
	t.Helper()
	s, _ := newStore(t)
	mailer := mocks.NewMockMailer(t)
	svc, err := auth.NewServiceWithLogger(auth.ServiceConfig{
		SigningSecret: []byte("flow-test-secret-flow-test-secret"),
		TokenTTL:      time.Hour,
		ResetURL:      "http://localhost/reset",
	}, s, auth.NewArgon2idHasher(), mailer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return svc, mailer
}

func TestFlow_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFlowService(t)

	summary, err := svc.Register(ctx, auth.RegisterRequest{Email: "a@b.com", Password: "abc12345"})
	require.NoError(t, err)

	_, err = svc.LoginWithPassword(ctx, "a@b.com", "wrong")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	res, err := svc.LoginWithPassword(ctx, "a@b.com", "abc12345")
	require.NoError(t, err)
	claims, err := svc.Tokens().Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, claims.UserID())

	profile, err := svc.VerifyToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", profile.Email)

	_, err = svc.Register(ctx, auth.RegisterRequest{Email: "A@B.COM", Password: "abc12345"})
	errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
}

func TestFlow_FaceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFlowService(t)

	_, err := svc.Register(ctx, auth.RegisterRequest{Email: "f@b.com", FaceEncoding: face.Vector{0, 0, 0}})
	require.NoError(t, err)

	_, err = svc.LoginWithFace(ctx, "f@b.com", face.Vector{0.3, 0, 0})
	require.NoError(t, err)
	_, err = svc.LoginWithFace(ctx, "f@b.com", face.Vector{0.6, 0, 0})
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	_, err = svc.LoginWithPassword(ctx, "f@b.com", "abc12345")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	err = svc.DeleteFace(ctx, "f@b.com")
	errutil.AssertErrorCode(t, err, auth.CodeMissingCredential)

	require.NoError(t, svc.UpdateFace(ctx, "f@b.com", face.Vector{1, 1, 1}))
	result, err := svc.VerifyFace(ctx, "f@b.com", face.Vector{1, 1, 1.2})
	require.NoError(t, err)
	assert.True(t, result.IsMatch)
}

func TestFlow_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, mailer := newFlowService(t)

	_, err := svc.Register(ctx, auth.RegisterRequest{Email: "a@b.com", Password: "abc12345"})
	require.NoError(t, err)

	var body string
	mailer.On("Send", mock.Anything, "a@b.com", auth.ResetMailSubject, mock.Anything).
		Run(func(args mock.Arguments) { body = args.String(3) }).
		Return(nil).Once()

	require.NoError(t, svc.ForgotPassword(ctx, auth.ForgotPasswordRequest{Email: "a@b.com", Method: auth.ResetMethodEmail}))
	require.NoError(t, svc.ForgotPassword(ctx, auth.ForgotPasswordRequest{Email: "nobody@b.com", Method: auth.ResetMethodEmail}))

	link, err := url.Parse(linkPattern.FindString(body))
	require.NoError(t, err)
	code := link.Query().Get("token")
	require.NotEmpty(t, code)

	require.NoError(t, svc.VerifyResetCode(ctx, "a@b.com", code))
	require.NoError(t, svc.ResetPassword(ctx, "a@b.com", code, "newpass99"))

	err = svc.ResetPassword(ctx, "a@b.com", code, "another99")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidOrExpired)

	_, err = svc.LoginWithPassword(ctx, "a@b.com", "abc12345")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	_, err = svc.LoginWithPassword(ctx, "a@b.com", "newpass99")
	require.NoError(t, err)
}

func TestFlow_NewChallengeSupersedesOld(t *testing.T) {
	ctx := context.Background()
	svc, mailer := newFlowService(t)

	_, err := svc.Register(ctx, auth.RegisterRequest{Email: "a@b.com", Password: "abc12345"})
	require.NoError(t, err)

	var bodies []string
	mailer.On("Send", mock.Anything, "a@b.com", auth.ResetMailSubject, mock.Anything).
		Run(func(args mock.Arguments) { bodies = append(bodies, args.String(3)) }).
		Return(nil).Twice()

	req := auth.ForgotPasswordRequest{Email: "a@b.com", Method: auth.ResetMethodEmail}
	require.NoError(t, svc.ForgotPassword(ctx, req))
	require.NoError(t, svc.ForgotPassword(ctx, req))
	require.Len(t, bodies, 2)

	first, err := url.Parse(linkPattern.FindString(bodies[0]))
	require.NoError(t, err)
	second, err := url.Parse(linkPattern.FindString(bodies[1]))
	require.NoError(t, err)

	err = svc.VerifyResetCode(ctx, "a@b.com", first.Query().Get("token"))
	errutil.AssertErrorCode(t, err, auth.CodeInvalidOrExpired)
	require.NoError(t, svc.VerifyResetCode(ctx, "a@b.com", second.Query().Get("token")))
}
