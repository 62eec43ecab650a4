// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/samber/oops"

	"github.com/facegate/facegate/pkg/errutil"
)

// Reset challenge parameters.
const (
	ResetSecretBytes         = 32 // hex encoded to 64 characters
	DefaultResetChallengeTTL = 24 * time.Hour
)

// GenerateResetSecret returns a random secret and its SHA-256 digest. The
// secret goes to the user; only the digest is stored.
func GenerateResetSecret() (secret, digest string, err error) {
	buf := make([]byte, ResetSecretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("RESET_SECRET_GENERATE_FAILED").Wrap(err)
	}
	secret = hex.EncodeToString(buf)
	return secret, hashResetSecret(secret), nil
}

// VerifyResetSecret compares a presented secret with a stored digest in
// constant time.
func VerifyResetSecret(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashResetSecret(secret)), []byte(digest)) == 1
}

func hashResetSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ResetFlow runs the per-user reset state machine:
// no challenge -> issued -> consumed, expired or superseded.
type ResetFlow struct {
	store  UserStore
	hasher PasswordHasher
	ttl    time.Duration
	logger *slog.Logger
}

// NewResetFlow creates a ResetFlow. A zero ttl selects DefaultResetChallengeTTL.
func NewResetFlow(store UserStore, hasher PasswordHasher, ttl time.Duration) (*ResetFlow, error) {
	return NewResetFlowWithLogger(store, hasher, ttl, slog.Default())
}

// NewResetFlowWithLogger creates a ResetFlow with a custom logger.
func NewResetFlowWithLogger(store UserStore, hasher PasswordHasher, ttl time.Duration, logger *slog.Logger) (*ResetFlow, error) {
	if store == nil {
		return nil, oops.Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if ttl < 0 {
		return nil, oops.With("ttl", ttl).Errorf("reset challenge ttl must be positive")
	}
	if ttl == 0 {
		ttl = DefaultResetChallengeTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetFlow{store: store, hasher: hasher, ttl: ttl, logger: logger}, nil
}

// TTL returns the challenge lifetime.
func (f *ResetFlow) TTL() time.Duration { return f.ttl }

// IssueChallenge creates a challenge for user, replacing any earlier one, and
// returns the plaintext secret.
func (f *ResetFlow) IssueChallenge(ctx context.Context, user *User) (string, error) {
	secret, digest, err := GenerateResetSecret()
	if err != nil {
		return "", err
	}

	challenge := &ResetChallenge{
		SecretHash: digest,
		ExpiresAt:  time.Now().UTC().Add(f.ttl),
	}
	if err := f.store.UpdateFields(ctx, user.ID, Patch{Reset: challenge}); err != nil {
		return "", internalError("store reset challenge", err)
	}
	user.Reset = challenge
	return secret, nil
}

// ValidateChallenge checks that the user exists, holds a challenge matching
// secret, and that the challenge has not expired. Every failure is the same
// RESET_INVALID_OR_EXPIRED error.
func (f *ResetFlow) ValidateChallenge(ctx context.Context, email, secret string) (*User, error) {
	user, err := f.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			VerifyResetSecret(secret, dummyResetDigest)
			return nil, invalidOrExpired()
		}
		return nil, internalError("find user for reset", err)
	}

	if user.Reset == nil {
		VerifyResetSecret(secret, dummyResetDigest)
		return nil, invalidOrExpired()
	}
	matches := VerifyResetSecret(secret, user.Reset.SecretHash)
	if !matches || !time.Now().Before(user.Reset.ExpiresAt) {
		return nil, invalidOrExpired()
	}
	return user, nil
}

// Consume validates the challenge and then, in one conditional store update,
// sets the new password and clears the challenge. A second Consume with the
// same secret fails.
func (f *ResetFlow) Consume(ctx context.Context, email, secret, newPassword string) error {
	user, err := f.ValidateChallenge(ctx, email, secret)
	if err != nil {
		return err
	}

	digest, err := f.hasher.Hash(newPassword)
	if err != nil {
		return internalError("hash new password", err)
	}

	err = f.store.ConsumeResetChallenge(ctx, user.Email, hashResetSecret(secret), digest, time.Now().UTC())
	if errors.Is(err, ErrNotFound) {
		return invalidOrExpired()
	}
	if err != nil {
		return internalError("consume reset challenge", err)
	}

	f.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID)
	return nil
}

// discard burns the same work as issuing a challenge without storing
// anything. Used for unknown emails.
func (f *ResetFlow) discard() {
	if _, _, err := GenerateResetSecret(); err != nil {
		errutil.LogWarn(f.logger, "discarded reset secret generation failed", err)
	}
}

// Bounds of the random pause taken for reset requests on unknown accounts.
const (
	EnumerationDelayMin = 20 * time.Millisecond
	EnumerationDelayMax = 40 * time.Millisecond
)

// enumerationDelay sleeps for a random duration in
// [EnumerationDelayMin, EnumerationDelayMax] or until ctx ends.
func enumerationDelay(ctx context.Context) error {
	span := int64(EnumerationDelayMax-EnumerationDelayMin) + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return oops.Wrap(err)
	}

	timer := time.NewTimer(EnumerationDelayMin + time.Duration(n.Int64()))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dummyResetDigest is compared against when there is no real digest.
var dummyResetDigest = hashResetSecret("facegate-no-reset-challenge")
