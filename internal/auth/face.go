// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/face"
)

func (s *Service) findForFace(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).Errorf("user not found")
		}
		return nil, internalError("find user", err)
	}
	return user, nil
}

// UpdateFace enrolls or replaces the face encoding of a user.
func (s *Service) UpdateFace(ctx context.Context, email string, encoding face.Vector) error {
	if err := encoding.Validate(); err != nil {
		return err
	}
	user, err := s.findForFace(ctx, email)
	if err != nil {
		return err
	}
	if err := s.store.UpdateFields(ctx, user.ID, Patch{FaceEncoding: encoding}); err != nil {
		return internalError("update face encoding", err)
	}
	s.logger.InfoContext(ctx, "face encoding updated", "user_id", user.ID)
	return nil
}

// DeleteFace removes the face encoding of a user. A user without a password
// keeps the face, since every user needs at least one factor.
func (s *Service) DeleteFace(ctx context.Context, email string) error {
	user, err := s.findForFace(ctx, email)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return oops.Code(CodeMissingCredential).Errorf("cannot remove the only credential; set a password first")
	}
	if err := s.store.UnsetFields(ctx, user.ID, FieldFaceEncoding); err != nil {
		return internalError("unset face encoding", err)
	}
	s.logger.InfoContext(ctx, "face encoding removed", "user_id", user.ID)
	return nil
}

// VerifyFace compares a candidate with the enrolled face and reports the raw
// result. Unknown users and users without a face fail with
// AUTH_INVALID_CREDENTIALS.
func (s *Service) VerifyFace(ctx context.Context, email string, candidate face.Vector) (face.MatchResult, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return face.MatchResult{}, err
	}
	if err := candidate.Validate(); err != nil {
		return face.MatchResult{}, err
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return face.MatchResult{}, invalidCredentials()
		}
		return face.MatchResult{}, internalError("find user", err)
	}
	if !user.HasFace() {
		return face.MatchResult{}, invalidCredentials()
	}

	result, err := s.matcher.Match(user.FaceEncoding, candidate)
	if err != nil {
		return face.MatchResult{}, invalidCredentials()
	}
	return result, nil
}
