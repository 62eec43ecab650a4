// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"time"

	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/face"
)

// User is the stored identity and credential state of one principal.
// An empty PasswordHash disables password login; a nil FaceEncoding disables
// face login.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FaceEncoding face.Vector
	Reset        *ResetChallenge
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResetChallenge is an active password reset. Only the digest of the secret
// is kept.
type ResetChallenge struct {
	SecretHash string
	ExpiresAt  time.Time
}

// NewUser creates a User holding at least one authentication factor. The ID
// is left empty for the store to assign.
func NewUser(email, passwordHash string, encoding face.Vector) (*User, error) {
	if email == "" {
		return nil, oops.Code(CodeValidation).Errorf("email is required")
	}
	if passwordHash == "" && len(encoding) == 0 {
		return nil, oops.Code(CodeMissingCredential).Errorf("a password or a face image is required")
	}
	now := time.Now().UTC()
	return &User{
		Email:        email,
		PasswordHash: passwordHash,
		FaceEncoding: encoding,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPassword reports whether password login is enabled.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// HasFace reports whether face login is enabled.
func (u *User) HasFace() bool { return len(u.FaceEncoding) > 0 }

// Summary is the non-secret view of a user returned to callers.
type Summary struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	HasPassword bool      `json:"has_password"`
	HasFace     bool      `json:"has_face"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary returns the non-secret view of u.
func (u *User) Summary() Summary {
	return Summary{
		ID:          u.ID,
		Email:       u.Email,
		HasPassword: u.HasPassword(),
		HasFace:     u.HasFace(),
		CreatedAt:   u.CreatedAt,
	}
}
