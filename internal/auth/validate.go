// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"regexp"
	"strings"
	"unicode"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower-cases an email. Emails are compared and
// stored in this form, which makes them case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email", "email is required")
	}
	if !emailRegex.MatchString(email) {
		return validationError("email", "invalid email format")
	}
	return nil
}

// ValidatePassword enforces the password policy: at least MinPasswordLength
// characters including a letter and a digit.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return validationError("password", "password must be at least %d characters long", MinPasswordLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return validationError("password", "password must contain at least one letter")
	}
	if !hasDigit {
		return validationError("password", "password must contain at least one number")
	}
	return nil
}
