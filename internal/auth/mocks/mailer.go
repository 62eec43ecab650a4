// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/facegate/facegate/internal/auth"
)

// MockMailer is a mock of auth.Mailer.
type MockMailer struct {
	mock.Mock
}

var _ auth.Mailer = (*MockMailer)(nil)

// NewMockMailer creates a MockMailer whose expectations are asserted when the
// test ends.
func NewMockMailer(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockMailer {
	m := &MockMailer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Send mocks auth.Mailer.Send.
func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}
