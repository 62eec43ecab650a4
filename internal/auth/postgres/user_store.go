// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package postgres implements auth.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/face"
)

// poolIface is the subset of pgxpool.Pool used by UserStore.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore implements auth.UserStore using PostgreSQL.
type UserStore struct {
	pool poolIface
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore over pool.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

const selectUser = `
	SELECT id, email, password_hash, face_encoding,
	       reset_secret_hash, reset_expires_at, created_at, updated_at
	FROM users
`

// FindByEmail retrieves a user by normalized email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, selectUser+`WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_STORE_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_STORE_FAILED").
			With("operation", "find user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// FindByID retrieves a user by id.
func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, selectUser+`WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_STORE_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_STORE_FAILED").
			With("operation", "find user by id").
			With("id", id).
			Wrap(err)
	}
	return user, nil
}

// Insert stores a new user under a fresh ULID.
func (s *UserStore) Insert(ctx context.Context, user *auth.User) (string, error) {
	id := ulid.Make().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, face_encoding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		id,
		user.Email,
		nullString(user.PasswordHash),
		encodingArg(user.FaceEncoding),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", oops.Code("USER_STORE_DUPLICATE").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
		}
		return "", oops.Code("USER_STORE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	user.ID = id
	return id, nil
}

// UpdateFields applies patch and bumps updated_at.
func (s *UserStore) UpdateFields(ctx context.Context, id string, patch auth.Patch) error {
	if patch.IsEmpty() {
		return oops.Code("USER_STORE_INVALID_PATCH").With("id", id).Errorf("patch changes nothing")
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	if patch.FaceEncoding != nil {
		set("face_encoding", []float64(patch.FaceEncoding))
	}
	if patch.Reset != nil {
		set("reset_secret_hash", patch.Reset.SecretHash)
		set("reset_expires_at", patch.Reset.ExpiresAt)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	sql := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	return s.exec(ctx, "update user fields", id, sql, args...)
}

// UnsetFields sets the named columns to NULL. The table constraint rejects
// clearing both factors.
func (s *UserStore) UnsetFields(ctx context.Context, id string, fields ...auth.Field) error {
	if err := auth.ValidateFields(fields); err != nil {
		return err
	}

	sets := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		switch f {
		case auth.FieldPasswordHash:
			sets = append(sets, "password_hash = NULL")
		case auth.FieldFaceEncoding:
			sets = append(sets, "face_encoding = NULL")
		case auth.FieldResetChallenge:
			sets = append(sets, "reset_secret_hash = NULL", "reset_expires_at = NULL")
		}
	}
	sets = append(sets, "updated_at = $1")

	sql := fmt.Sprintf(`UPDATE users SET %s WHERE id = $2`, strings.Join(sets, ", "))
	return s.exec(ctx, "unset user fields", id, sql, time.Now().UTC(), id)
}

// ConsumeResetChallenge replaces the password and clears the challenge in a
// single conditional UPDATE.
func (s *UserStore) ConsumeResetChallenge(ctx context.Context, email, secretHash, passwordHash string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $3, reset_secret_hash = NULL, reset_expires_at = NULL, updated_at = $4
		WHERE email = $1 AND reset_secret_hash = $2 AND reset_expires_at > $4
	`, email, secretHash, passwordHash, now)
	if err != nil {
		return oops.Code("USER_STORE_FAILED").
			With("operation", "consume reset challenge").
			With("email", email).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_STORE_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (s *UserStore) exec(ctx context.Context, operation, id, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code("USER_STORE_FAILED").
			With("operation", operation).
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_STORE_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user          auth.User
		passwordHash  *string
		encoding      []float64
		resetHash     *string
		resetExpireAt *time.Time
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&encoding,
		&resetHash,
		&resetExpireAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	if len(encoding) > 0 {
		user.FaceEncoding = face.Vector(encoding)
	}
	if resetHash != nil && resetExpireAt != nil {
		user.Reset = &auth.ResetChallenge{SecretHash: *resetHash, ExpiresAt: *resetExpireAt}
	}
	return &user, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodingArg(v face.Vector) []float64 {
	if len(v) == 0 {
		return nil
	}
	return []float64(v)
}
