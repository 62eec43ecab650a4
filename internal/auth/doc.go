// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package auth is the FaceGate authentication engine.
//
// # Components
//
//   - UserStore - the persistence boundary; see the postgres, mongo and redis subpackages
//   - PasswordHasher - argon2id digests, with bcrypt verification for legacy records
//   - TokenIssuer - stateless HS256 session tokens
//   - ResetFlow - issue, validate and consume password reset challenges
//   - Service - register, login, password reset, token verification and face management
//
// # Enumeration resistance
//
// Login failures are always AUTH_INVALID_CREDENTIALS. Reset failures are always
// RESET_INVALID_OR_EXPIRED. Face-based reset requests fail with
// RESET_VERIFICATION_FAILED whether or not the account exists, and email-based
// reset requests always succeed.
//
// Emails are normalized with NormalizeEmail before they reach a store.
package auth
