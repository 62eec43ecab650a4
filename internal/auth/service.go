// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/pkg/errutil"
)

// ServiceConfig is the process-wide configuration of a Service. It is read
// once at construction.
type ServiceConfig struct {
	SigningSecret     []byte
	TokenTTL          time.Duration
	FaceTolerance     float64
	ResetChallengeTTL time.Duration
	ResetURL          string
}

// Reset methods accepted by ForgotPassword.
const (
	ResetMethodEmail = "email"
	ResetMethodFace  = "face"
)

// RegisterRequest carries the credentials of a new user. At least one of
// Password and FaceEncoding must be set.
type RegisterRequest struct {
	Email        string
	Password     string
	FaceEncoding face.Vector
}

// ForgotPasswordRequest starts a reset. FaceEncoding is required when Method
// is ResetMethodFace.
type ForgotPasswordRequest struct {
	Email        string
	Method       string
	FaceEncoding face.Vector
}

// LoginResult is returned by successful logins.
type LoginResult struct {
	Token string  `json:"token"`
	User  Summary `json:"user"`
}

// Service composes the store, hasher, matcher, token issuer and reset flow
// into the public authentication operations.
type Service struct {
	store    UserStore
	hasher   PasswordHasher
	mailer   Mailer
	tokens   *TokenIssuer
	matcher  *face.Matcher
	reset    *ResetFlow
	resetURL string
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, store UserStore, hasher PasswordHasher, mailer Mailer) (*Service, error) {
	return NewServiceWithLogger(cfg, store, hasher, mailer, slog.Default())
}

// NewServiceWithLogger creates a Service with a custom logger.
func NewServiceWithLogger(cfg ServiceConfig, store UserStore, hasher PasswordHasher, mailer Mailer, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := NewTokenIssuer(cfg.SigningSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	tolerance := cfg.FaceTolerance
	if tolerance == 0 {
		tolerance = face.DefaultTolerance
	}
	matcher, err := face.NewMatcher(tolerance)
	if err != nil {
		return nil, err
	}
	reset, err := NewResetFlowWithLogger(store, hasher, cfg.ResetChallengeTTL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.ResetURL == "" {
		return nil, oops.Errorf("reset url is required")
	}
	if _, err := ResetLink(cfg.ResetURL, "", ""); err != nil {
		return nil, err
	}

	return &Service{
		store:    store,
		hasher:   hasher,
		mailer:   mailer,
		tokens:   tokens,
		matcher:  matcher,
		reset:    reset,
		resetURL: cfg.ResetURL,
		logger:   logger,
	}, nil
}

// Tokens returns the session token issuer.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Register creates a user. It fails with AUTH_MISSING_CREDENTIAL when neither
// a password nor a face encoding is supplied and with AUTH_DUPLICATE_EMAIL when
// the email is taken.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Summary, error) {
	email := NormalizeEmail(req.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if req.Password == "" && len(req.FaceEncoding) == 0 {
		return nil, oops.Code(CodeMissingCredential).Errorf("a password or a face image is required")
	}
	if req.Password != "" {
		if err := ValidatePassword(req.Password); err != nil {
			return nil, err
		}
	}
	if req.FaceEncoding != nil {
		if err := req.FaceEncoding.Validate(); err != nil {
			return nil, err
		}
	}

	_, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, duplicateEmail()
	case !errors.Is(err, ErrNotFound):
		return nil, internalError("check existing email", err)
	}

	var digest string
	if req.Password != "" {
		if digest, err = s.hasher.Hash(req.Password); err != nil {
			return nil, internalError("hash password", err)
		}
	}

	user, err := NewUser(email, digest, req.FaceEncoding)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmail()
		}
		return nil, internalError("insert user", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID,
		"has_password", user.HasPassword(),
		"has_face", user.HasFace(),
	)
	summary := user.Summary()
	return &summary, nil
}

// LoginWithPassword authenticates by password. Unknown emails, users without a
// password and wrong passwords all yield AUTH_INVALID_CREDENTIALS after the
// same amount of hashing work.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("credentials", "email and password are required")
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, internalError("find user", err)
	}

	target := dummyPasswordHash
	known := err == nil && user.HasPassword()
	if known {
		target = user.PasswordHash
	}

	ok, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil {
		if known {
			errutil.LogError(s.logger, "stored password digest is unreadable", verifyErr)
		}
		return nil, invalidCredentials()
	}
	if !known || !ok {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradePassword(ctx, user, password)
	}
	return s.issue(user)
}

// upgradePassword replaces a legacy digest after a successful login.
func (s *Service) upgradePassword(ctx context.Context, user *User, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogWarn(s.logger, "password upgrade hash failed", err)
		return
	}
	if err := s.store.UpdateFields(ctx, user.ID, Patch{PasswordHash: &digest}); err != nil {
		s.logger.WarnContext(ctx, "password upgrade failed",
			"user_id", user.ID,
			"operation", "UpdateFields",
			"error", err,
		)
		return
	}
	user.PasswordHash = digest
}

// LoginWithFace authenticates by face. Unknown emails, users without a face
// and non-matching faces all yield AUTH_INVALID_CREDENTIALS.
func (s *Service) LoginWithFace(ctx context.Context, email string, candidate face.Vector) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, validationError("email", "email is required")
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, internalError("find user", err)
	}
	if !user.HasFace() {
		return nil, invalidCredentials()
	}

	result, err := s.matcher.Match(user.FaceEncoding, candidate)
	if err != nil || !result.IsMatch {
		return nil, invalidCredentials()
	}
	return s.issue(user)
}

func (s *Service) issue(user *User) (*LoginResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, internalError("issue token", err)
	}
	return &LoginResult{Token: token, User: user.Summary()}, nil
}

// ForgotPassword starts a password reset. The email method always reports
// success whether or not the account exists, and a failed delivery is only
// logged. The face method first checks
// the face and fails with RESET_VERIFICATION_FAILED, identically for unknown
// accounts, accounts without a face and non-matching faces.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	email := NormalizeEmail(req.Email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	switch req.Method {
	case ResetMethodEmail:
	case ResetMethodFace:
		if err := req.FaceEncoding.Validate(); err != nil {
			return err
		}
	default:
		return validationError("method", "method must be %q or %q", ResetMethodEmail, ResetMethodFace)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return internalError("find user", err)
	}
	exists := err == nil

	if req.Method == ResetMethodFace {
		if !exists || !user.HasFace() {
			return verificationFailed()
		}
		result, matchErr := s.matcher.Match(user.FaceEncoding, req.FaceEncoding)
		if matchErr != nil || !result.IsMatch {
			return verificationFailed()
		}
	}

	if !exists {
		s.reset.discard()
		if err := enumerationDelay(ctx); err != nil {
			s.logger.DebugContext(ctx, "enumeration delay interrupted", "error", err)
		}
		return nil
	}

	secret, err := s.reset.IssueChallenge(ctx, user)
	if err != nil {
		return err
	}
	link, err := ResetLink(s.resetURL, secret, user.Email)
	if err != nil {
		return internalError("build reset link", err)
	}
	if err := s.mailer.Send(ctx, user.Email, ResetMailSubject, ResetMailBody(link, s.reset.TTL())); err != nil {
		// The caller sees the same success as for an unknown account.
		errutil.LogError(s.logger, "reset mail delivery failed",
			oops.Code(CodeMailFailed).With("user_id", user.ID).Wrap(err))
		return nil
	}

	s.logger.InfoContext(ctx, "reset challenge issued", "user_id", user.ID, "method", req.Method)
	return nil
}

// VerifyResetCode checks a reset code without consuming it.
func (s *Service) VerifyResetCode(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return validationError("code", "email and code are required")
	}
	_, err := s.reset.ValidateChallenge(ctx, email, code)
	return err
}

// ResetPassword consumes a reset code and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = NormalizeEmail(email)
	if email == "" || code == "" || newPassword == "" {
		return validationError("code", "email, code and new password are required")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	return s.reset.Consume(ctx, email, code, newPassword)
}

// VerifyToken validates a session token and returns the current profile of
// its user.
func (s *Service) VerifyToken(ctx context.Context, token string) (*Summary, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).Errorf("user not found")
		}
		return nil, internalError("find user by id", err)
	}
	summary := user.Summary()
	return &summary, nil
}

func duplicateEmail() error {
	return oops.Code(CodeDuplicateEmail).Errorf("email already registered")
}
