// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Store sentinels. UserStore implementations wrap these so callers can use errors.Is.
var (
	// ErrNotFound is returned when a requested user does not exist or a
	// conditional update matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by Insert when the email is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Error codes carried on oops errors returned by this package.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeMissingCredential  = "AUTH_MISSING_CREDENTIAL"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidOrExpired   = "RESET_INVALID_OR_EXPIRED"
	CodeVerificationFailed = "RESET_VERIFICATION_FAILED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeMailFailed         = "MAIL_SEND_FAILED"
	CodeInternal           = "AUTH_INTERNAL"
)

func validationError(field, format string, args ...any) error {
	return oops.Code(CodeValidation).With("field", field).Errorf(format, args...)
}

// The errors below never wrap a cause. Their text must not depend on whether
// the account exists.

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func invalidOrExpired() error {
	return oops.Code(CodeInvalidOrExpired).Errorf("invalid or expired reset code")
}

func verificationFailed() error {
	return oops.Code(CodeVerificationFailed).Errorf("face verification failed")
}

func internalError(operation string, err error) error {
	return oops.Code(CodeInternal).With("operation", operation).Wrap(err)
}
