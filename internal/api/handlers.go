// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/internal/observability"
	"github.com/facegate/facegate/pkg/errutil"
)

// AuthService is the part of auth.Service the API exposes.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Summary, error)
	LoginWithPassword(ctx context.Context, email, password string) (*auth.LoginResult, error)
	LoginWithFace(ctx context.Context, email string, candidate face.Vector) (*auth.LoginResult, error)
	ForgotPassword(ctx context.Context, req auth.ForgotPasswordRequest) error
	VerifyResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	VerifyToken(ctx context.Context, token string) (*auth.Summary, error)
	UpdateFace(ctx context.Context, email string, encoding face.Vector) error
	DeleteFace(ctx context.Context, email string) error
	VerifyFace(ctx context.Context, email string, candidate face.Vector) (face.MatchResult, error)
}

// CodeEncoderUnavailable is returned for face images when no encoder is configured.
const CodeEncoderUnavailable = "FACE_ENCODER_UNAVAILABLE"

// forgotPasswordMessage is the reply to every accepted forgot-password request.
const forgotPasswordMessage = "If the account exists, password reset instructions have been sent"

type authAPI struct {
	svc     AuthService
	encoder face.Encoder
	metrics *observability.Metrics
	logger  *slog.Logger
}

// endpoint runs one auth operation and writes its reply. Every outcome is
// counted under operation.
type endpoint func(w http.ResponseWriter, r *http.Request) (int, response, error)

func (h *authAPI) wrap(operation string, fn endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := h.logger.With("operation", operation, "request_id", RequestID(r.Context()))

		status, resp, err := fn(w, r)
		if err != nil {
			result := errutil.Code(err)
			if result == "" {
				result = "UNKNOWN"
			}
			h.metrics.RecordAuthAttempt(operation, result)
			writeError(w, logger, err)
			return
		}
		h.metrics.RecordAuthAttempt(operation, "success")
		resp.Success = true
		writeJSON(w, status, resp)
	}
}

// faceVector resolves the face input of a request. A precomputed encoding is
// used as is; an image goes through the encoder. Neither yields nil.
func (h *authAPI) faceVector(ctx context.Context, image string, encoding []float64) (face.Vector, error) {
	switch {
	case image != "" && len(encoding) > 0:
		return nil, oops.Code(auth.CodeValidation).With("field", "face_image").
			Errorf("provide face_image or face_encoding, not both")
	case len(encoding) > 0:
		return face.Vector(encoding), nil
	case image == "":
		return nil, nil
	case h.encoder == nil:
		return nil, oops.Code(CodeEncoderUnavailable).Errorf("face images are not accepted by this server")
	}

	data, err := face.DecodeImage(image)
	if err != nil {
		return nil, err
	}
	return h.encoder.Encode(ctx, data)
}

func requireFace(v face.Vector) error {
	if len(v) == 0 {
		return oops.Code(auth.CodeValidation).With("field", "face_image").Errorf("face_image is required")
	}
	return nil
}

func (h *authAPI) register(w http.ResponseWriter, r *http.Request) (int, response, error) {
	var req RegisterRequest
	if err := decode(w, r, &req); err != nil {
		return 0, response{}, err
	}
	vec, err := h.faceVector(r.Context(), req.FaceImage, req.FaceEncoding)
	if err != nil {
		return 0, response{}, err
	}

	summary, err := h.svc.Register(r.Context(), auth.RegisterRequest{
		Email:        req.Email,
		Password:     req.Password,
		FaceEncoding: vec,
	})
	if err != nil {
		return 0, response{}, err
	}
	return http.StatusCreated, response{Message: "User registered successfully", User: summary}, nil
}

func (h *authAPI) login(w http.ResponseWriter, r *http.Request) (int, response, error) {
	var req LoginRequest
	if err := decode(w, r, &req); err != nil {
		return 0, response{}, err
	}

	var (
		result *auth.LoginResult
		err    error
	)
	switch req.Method {
	case "face":
		var vec face.Vector
		if vec, err = h.faceVector(r.Context(), req.FaceImage, req.FaceEncoding); err != nil {
			return 0, response{}, err
		}
		if err = requireFace(vec); err != nil {
			return 0, response{}, err
		}
		result, err = h.svc.LoginWithFace(r.Context(), req.Email, vec)
	default:
		result, err = h.svc.LoginWithPassword(r.Context(), req.Email, req.Password)
	}
	if err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{Message: "Login successful", Token: result.Token, User: &result.User}, nil
}

func (h *authAPI) forgotPassword(w http.ResponseWriter, r *http.Request) (int, response, error) {
	var req ForgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		return 0, response{}, err
	}
	vec, err := h.faceVector(r.Context(), req.FaceImage, req.FaceEncoding)
	if err != nil {
		return 0, response{}, err
	}

	err = h.svc.ForgotPassword(r.Context(), auth.ForgotPasswordRequest{
		Email:        req.Email,
		Method:       req.Method,
		FaceEncoding: vec,
	})
	if err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{Message: forgotPasswordMessage}, nil
}

func (h *authAPI) verifyResetCode(w http.ResponseWriter, r *http.Request) (int, response, error) {
	var req VerifyResetCodeRequest
	if err := decode(w, r, &req); err != nil {
		return 0, response{}, err
	}
	if err := h.svc.VerifyResetCode(r.Context(), req.Email, req.Code); err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{Message: "Reset code is valid"}, nil
}

func (h *authAPI) resetPassword(w http.ResponseWriter, r *http.Request) (int, response, error) {
	var req ResetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		return 0, response{}, err
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{Message: "Password has been reset"}, nil
}

func (h *authAPI) verifyToken(_ http.ResponseWriter, r *http.Request) (int, response, error) {
	summary, err := h.authenticate(r)
	if err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{User: summary}, nil
}

// authenticate resolves the bearer token of r to the user it was issued for.
func (h *authAPI) authenticate(r *http.Request) (*auth.Summary, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, oops.Code(auth.CodeTokenInvalid).Errorf("missing bearer token")
	}
	return h.svc.VerifyToken(r.Context(), token)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// updateFace enrolls a face for the token's user. The body carries no email.
func (h *authAPI) updateFace(w http.ResponseWriter, r *http.Request) (int, response, error) {
	user, err := h.authenticate(r)
	if err != nil {
		return 0, response{}, err
	}
	var req FaceUpdateRequest
	if err := decode(w, r, &req); err != nil {
		return 0, response{}, err
	}
	vec, err := h.faceVector(r.Context(), req.FaceImage, req.FaceEncoding)
	if err != nil {
		return 0, response{}, err
	}
	if err := requireFace(vec); err != nil {
		return 0, response{}, err
	}
	if err := h.svc.UpdateFace(r.Context(), user.Email, vec); err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{Message: "Face updated"}, nil
}

func (h *authAPI) deleteFace(_ http.ResponseWriter, r *http.Request) (int, response, error) {
	user, err := h.authenticate(r)
	if err != nil {
		return 0, response{}, err
	}
	if err := h.svc.DeleteFace(r.Context(), user.Email); err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{Message: "Face removed"}, nil
}

func (h *authAPI) verifyFace(w http.ResponseWriter, r *http.Request) (int, response, error) {
	var req FaceRequest
	if err := decode(w, r, &req); err != nil {
		return 0, response{}, err
	}
	vec, err := h.faceVector(r.Context(), req.FaceImage, req.FaceEncoding)
	if err != nil {
		return 0, response{}, err
	}
	if err := requireFace(vec); err != nil {
		return 0, response{}, err
	}
	result, err := h.svc.VerifyFace(r.Context(), req.Email, vec)
	if err != nil {
		return 0, response{}, err
	}
	return http.StatusOK, response{Result: &result}, nil
}
