// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/facegate/facegate/internal/api"
	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/face"
)

// MockAuthService is a mock of api.AuthService.
type MockAuthService struct {
	mock.Mock
}

var _ api.AuthService = (*MockAuthService)(nil)

// NewMockAuthService creates a MockAuthService whose expectations are
// asserted when the test ends.
func NewMockAuthService(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAuthService {
	m := &MockAuthService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func summary(args mock.Arguments, i int) *auth.Summary {
	s, _ := args.Get(i).(*auth.Summary)
	return s
}

func loginResult(args mock.Arguments, i int) *auth.LoginResult {
	r, _ := args.Get(i).(*auth.LoginResult)
	return r
}

// Register mocks api.AuthService.Register.
func (m *MockAuthService) Register(ctx context.Context, req auth.RegisterRequest) (*auth.Summary, error) {
	args := m.Called(ctx, req)
	return summary(args, 0), args.Error(1)
}

// LoginWithPassword mocks api.AuthService.LoginWithPassword.
func (m *MockAuthService) LoginWithPassword(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	args := m.Called(ctx, email, password)
	return loginResult(args, 0), args.Error(1)
}

// LoginWithFace mocks api.AuthService.LoginWithFace.
func (m *MockAuthService) LoginWithFace(ctx context.Context, email string, candidate face.Vector) (*auth.LoginResult, error) {
	args := m.Called(ctx, email, candidate)
	return loginResult(args, 0), args.Error(1)
}

// ForgotPassword mocks api.AuthService.ForgotPassword.
func (m *MockAuthService) ForgotPassword(ctx context.Context, req auth.ForgotPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}

// VerifyResetCode mocks api.AuthService.VerifyResetCode.
func (m *MockAuthService) VerifyResetCode(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

// ResetPassword mocks api.AuthService.ResetPassword.
func (m *MockAuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return m.Called(ctx, email, code, newPassword).Error(0)
}

// VerifyToken mocks api.AuthService.VerifyToken.
func (m *MockAuthService) VerifyToken(ctx context.Context, token string) (*auth.Summary, error) {
	args := m.Called(ctx, token)
	return summary(args, 0), args.Error(1)
}

// UpdateFace mocks api.AuthService.UpdateFace.
func (m *MockAuthService) UpdateFace(ctx context.Context, email string, encoding face.Vector) error {
	return m.Called(ctx, email, encoding).Error(0)
}

// DeleteFace mocks api.AuthService.DeleteFace.
func (m *MockAuthService) DeleteFace(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// VerifyFace mocks api.AuthService.VerifyFace.
func (m *MockAuthService) VerifyFace(ctx context.Context, email string, candidate face.Vector) (face.MatchResult, error) {
	args := m.Called(ctx, email, candidate)
	res, _ := args.Get(0).(face.MatchResult)
	return res, args.Error(1)
}
