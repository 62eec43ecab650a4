// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package redis implements auth.UserStore on Redis.
//
// Each user is a JSON document under {prefix}:user:{id}. The key
// {prefix}:user-email:{email} maps an email to its id and is what makes
// emails unique. Multi-key changes run in WATCH/MULTI transactions.
package redis

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/internal/store"
	"github.com/facegate/facegate/pkg/errutil"
)

// DefaultPrefix namespaces every key written by UserStore.
const DefaultPrefix = "facegate"

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 4

type userDoc struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"password_hash,omitempty"`
	FaceEncoding    []float64  `json:"face_encoding,omitempty"`
	ResetSecretHash string     `json:"reset_secret_hash,omitempty"`
	ResetExpiresAt  *time.Time `json:"reset_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func fromUser(u *auth.User) userDoc {
	doc := userDoc{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FaceEncoding: u.FaceEncoding,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Reset != nil {
		expires := u.Reset.ExpiresAt
		doc.ResetSecretHash = u.Reset.SecretHash
		doc.ResetExpiresAt = &expires
	}
	return doc
}

func (d *userDoc) toUser() *auth.User {
	user := &auth.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if len(d.FaceEncoding) > 0 {
		user.FaceEncoding = face.Vector(d.FaceEncoding)
	}
	if d.ResetSecretHash != "" && d.ResetExpiresAt != nil {
		user.Reset = &auth.ResetChallenge{SecretHash: d.ResetSecretHash, ExpiresAt: *d.ResetExpiresAt}
	}
	return user
}

// UserStore implements auth.UserStore using Redis.
type UserStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore. An empty prefix selects DefaultPrefix.
func NewUserStore(rdb redis.UniversalClient, prefix string) *UserStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &UserStore{rdb: rdb, prefix: prefix}
}

// Connect parses a redis:// URL, waits for PING and returns the client.
func Connect(ctx context.Context, logger *slog.Logger, policy store.RetryPolicy, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := redis.NewClient(opts)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := store.WithRetry(ctx, logger, policy, "redis ping", ping); err != nil {
		if cerr := client.Close(); cerr != nil {
			errutil.LogWarn(logger, "redis close after failed connect", cerr)
		}
		return nil, err
	}
	return client, nil
}

func (s *UserStore) userKey(id string) string     { return s.prefix + ":user:" + id }
func (s *UserStore) emailKey(email string) string { return s.prefix + ":user-email:" + email }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadDoc(ctx context.Context, g getter, key string) (*userDoc, error) {
	data, err := g.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap
	}
	var doc userDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, oops.Code("USER_STORE_CORRUPT").With("key", key).Wrap(err)
	}
	return &doc, nil
}

// FindByEmail retrieves a user by normalized email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	id, err := s.rdb.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("USER_STORE_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_STORE_FAILED").
			With("operation", "find user by email").
			With("email", email).
			Wrap(err)
	}
	return s.FindByID(ctx, id)
}

// FindByID retrieves a user by id.
func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	doc, err := loadDoc(ctx, s.rdb, s.userKey(id))
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("USER_STORE_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_STORE_FAILED").
			With("operation", "find user by id").
			With("id", id).
			Wrap(err)
	}
	return doc.toUser(), nil
}

// Insert stores a new user under a fresh ULID and claims its email key.
func (s *UserStore) Insert(ctx context.Context, user *auth.User) (string, error) {
	doc := fromUser(user)
	doc.ID = ulid.Make().String()
	data, err := json.Marshal(doc)
	if err != nil {
		return "", oops.Code("USER_STORE_FAILED").With("operation", "encode user").Wrap(err)
	}

	emailKey := s.emailKey(user.Email)
	for range maxTxRetries {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, emailKey).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return auth.ErrDuplicateEmail
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.userKey(doc.ID), data, 0)
				pipe.Set(ctx, emailKey, doc.ID, 0)
				return nil
			})
			return err
		}, emailKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	switch {
	case err == nil:
		user.ID = doc.ID
		return doc.ID, nil
	case errors.Is(err, auth.ErrDuplicateEmail), errors.Is(err, redis.TxFailedErr):
		return "", oops.Code("USER_STORE_DUPLICATE").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
	default:
		return "", oops.Code("USER_STORE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
}

// modify runs a read-modify-write of one user document under WATCH.
// Returning auth.ErrNotFound from fn aborts without writing.
func (s *UserStore) modify(ctx context.Context, operation, id string, fn func(*userDoc) error) error {
	key := s.userKey(id)
	var err error
	for range maxTxRetries {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			doc, err := loadDoc(ctx, tx, key)
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
			data, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil), errors.Is(err, auth.ErrNotFound):
		return oops.Code("USER_STORE_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	default:
		return oops.Code("USER_STORE_FAILED").
			With("operation", operation).
			With("id", id).
			Wrap(err)
	}
}

// UpdateFields applies patch and bumps updated_at.
func (s *UserStore) UpdateFields(ctx context.Context, id string, patch auth.Patch) error {
	if patch.IsEmpty() {
		return oops.Code("USER_STORE_INVALID_PATCH").With("id", id).Errorf("patch changes nothing")
	}
	return s.modify(ctx, "update user fields", id, func(doc *userDoc) error {
		if patch.PasswordHash != nil {
			doc.PasswordHash = *patch.PasswordHash
		}
		if patch.FaceEncoding != nil {
			doc.FaceEncoding = patch.FaceEncoding
		}
		if patch.Reset != nil {
			expires := patch.Reset.ExpiresAt
			doc.ResetSecretHash = patch.Reset.SecretHash
			doc.ResetExpiresAt = &expires
		}
		doc.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// UnsetFields clears the named fields. Clearing the last factor is refused.
func (s *UserStore) UnsetFields(ctx context.Context, id string, fields ...auth.Field) error {
	if err := auth.ValidateFields(fields); err != nil {
		return err
	}
	var lastFactor bool
	err := s.modify(ctx, "unset user fields", id, func(doc *userDoc) error {
		for _, f := range fields {
			switch f {
			case auth.FieldPasswordHash:
				doc.PasswordHash = ""
			case auth.FieldFaceEncoding:
				doc.FaceEncoding = nil
			case auth.FieldResetChallenge:
				doc.ResetSecretHash = ""
				doc.ResetExpiresAt = nil
			}
		}
		if doc.PasswordHash == "" && len(doc.FaceEncoding) == 0 {
			lastFactor = true
			return errLastFactor
		}
		doc.UpdatedAt = time.Now().UTC()
		return nil
	})
	if lastFactor {
		return oops.Code("USER_STORE_INVALID_FIELDS").With("id", id).Errorf("cannot remove every factor")
	}
	return err
}

var errLastFactor = errors.New("last factor")

// ConsumeResetChallenge sets the password and clears the challenge when the
// stored digest matches and has not expired, all under one WATCH.
func (s *UserStore) ConsumeResetChallenge(ctx context.Context, email, secretHash, passwordHash string, now time.Time) error {
	id, err := s.rdb.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return oops.Code("USER_STORE_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("USER_STORE_FAILED").
			With("operation", "consume reset challenge").
			With("email", email).
			Wrap(err)
	}

	err = s.modify(ctx, "consume reset challenge", id, func(doc *userDoc) error {
		if doc.Email != email || doc.ResetExpiresAt == nil || !now.Before(*doc.ResetExpiresAt) {
			return auth.ErrNotFound
		}
		if subtle.ConstantTimeCompare([]byte(doc.ResetSecretHash), []byte(secretHash)) != 1 {
			return auth.ErrNotFound
		}
		doc.PasswordHash = passwordHash
		doc.ResetSecretHash = ""
		doc.ResetExpiresAt = nil
		doc.UpdatedAt = now
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return oops.Code("USER_STORE_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return err
}
