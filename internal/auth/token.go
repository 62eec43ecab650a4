// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the session token lifetime when none is configured.
const DefaultTokenTTL = time.Hour

// MinSigningSecretLength is the shortest HS256 key accepted.
const MinSigningSecretLength = 32

// Claims is the session token payload: sub, email, iat, exp and a token id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string { return c.Subject }

// TokenIssuer mints and validates HS256 session tokens. The key and TTL are
// fixed at construction.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer. A zero ttl selects DefaultTokenTTL.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("signing secret is required")
	}
	if ttl < 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").With("ttl", ttl).Errorf("token ttl must be positive")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenIssuer{secret: key, ttl: ttl}, nil
}

// TTL returns the token lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue returns a signed token for the user.
func (i *TokenIssuer) Issue(userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("user_id", userID).Wrap(err)
	}
	return signed, nil
}

// Validate verifies the signature and expiry of token and returns its claims.
// Expired tokens fail with TOKEN_EXPIRED, everything else with TOKEN_INVALID.
func (i *TokenIssuer) Validate(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code(CodeTokenInvalid).Errorf("token is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, oops.Code(CodeTokenExpired).Errorf("token has expired")
	case err != nil:
		return nil, oops.Code(CodeTokenInvalid).Errorf("invalid token")
	case claims.Subject == "":
		return nil, oops.Code(CodeTokenInvalid).Errorf("invalid token")
	}
	return claims, nil
}
