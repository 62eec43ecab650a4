// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/pkg/errutil"
)

// response is the JSON envelope of every reply.
type response struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Token   string            `json:"token,omitempty"`
	User    *auth.Summary     `json:"user,omitempty"`
	Result  *face.MatchResult `json:"result,omitempty"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case auth.CodeValidation, auth.CodeMissingCredential,
		face.CodeInvalidInput, face.CodeNoFace, face.CodeMultipleFaces, face.CodeDecodeFailed:
		return http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeInvalidOrExpired, auth.CodeVerificationFailed,
		auth.CodeTokenExpired, auth.CodeTokenInvalid:
		return http.StatusUnauthorized
	case auth.CodeUserNotFound:
		return http.StatusNotFound
	case auth.CodeDuplicateEmail:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(body)
}

// writeError replies with the mapped status. Client errors carry the error
// message, which the auth package keeps free of account details. Server
// errors are logged and answered generically.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(errutil.Code(err))
	msg := "internal server error"
	if status < http.StatusInternalServerError {
		msg = err.Error()
		logger.Debug("request rejected", "status", status, "code", errutil.Code(err))
	} else {
		errutil.LogError(logger, "request failed", err)
	}
	writeJSON(w, status, response{Success: false, Message: msg})
}
