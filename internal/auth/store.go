// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/face"
)

// Field names a clearable part of a user record.
type Field string

// Fields accepted by UserStore.UnsetFields.
const (
	FieldPasswordHash   Field = "password_hash"
	FieldFaceEncoding   Field = "face_encoding"
	FieldResetChallenge Field = "reset_challenge"
)

// ValidateFields rejects empty or unknown field lists.
func ValidateFields(fields []Field) error {
	if len(fields) == 0 {
		return oops.Code("STORE_INVALID_FIELDS").Errorf("no fields to unset")
	}
	for _, f := range fields {
		switch f {
		case FieldPasswordHash, FieldFaceEncoding, FieldResetChallenge:
		default:
			return oops.Code("STORE_INVALID_FIELDS").With("field", string(f)).Errorf("unknown field")
		}
	}
	return nil
}

// Patch is a partial update. Nil members are left untouched.
type Patch struct {
	PasswordHash *string
	FaceEncoding face.Vector
	Reset        *ResetChallenge
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.PasswordHash == nil && p.FaceEncoding == nil && p.Reset == nil
}

// UserStore persists user records. Every method is atomic on its own; the
// uniqueness of Email is enforced by the backing store.
type UserStore interface {
	// FindByEmail returns the user with the given normalized email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID returns the user with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*User, error)

	// Insert stores a new user, sets user.ID and returns it.
	// Fails with ErrDuplicateEmail when the email is taken.
	Insert(ctx context.Context, user *User) (string, error)

	// UpdateFields applies patch to the user. Unknown id yields ErrNotFound.
	UpdateFields(ctx context.Context, id string, patch Patch) error

	// UnsetFields clears the named fields. Unknown id yields ErrNotFound.
	UnsetFields(ctx context.Context, id string, fields ...Field) error

	// ConsumeResetChallenge sets a new password digest and clears the reset
	// challenge in one conditional update. It matches only a user with this
	// email whose stored secret digest equals secretHash and whose challenge
	// expires after now; otherwise it returns ErrNotFound.
	ConsumeResetChallenge(ctx context.Context, email, secretHash, passwordHash string, now time.Time) error
}
