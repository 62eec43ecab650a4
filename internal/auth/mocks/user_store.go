// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package mocks holds testify mocks of the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/facegate/facegate/internal/auth"
)

// MockUserStore is a mock of auth.UserStore.
type MockUserStore struct {
	mock.Mock
}

var _ auth.UserStore = (*MockUserStore)(nil)

// NewMockUserStore creates a MockUserStore whose expectations are asserted
// when the test ends.
func NewMockUserStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserStore {
	m := &MockUserStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func userResult(ret mock.Arguments) (*auth.User, error) {
	var u *auth.User
	if v := ret.Get(0); v != nil {
		u = v.(*auth.User)
	}
	return u, ret.Error(1)
}

// FindByEmail mocks auth.UserStore.FindByEmail.
func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return userResult(m.Called(ctx, email))
}

// FindByID mocks auth.UserStore.FindByID.
func (m *MockUserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return userResult(m.Called(ctx, id))
}

// Insert mocks auth.UserStore.Insert. When the configured id is non-empty it
// is also written to user.ID.
func (m *MockUserStore) Insert(ctx context.Context, user *auth.User) (string, error) {
	ret := m.Called(ctx, user)
	id := ret.String(0)
	if id != "" && user != nil {
		user.ID = id
	}
	return id, ret.Error(1)
}

// UpdateFields mocks auth.UserStore.UpdateFields.
func (m *MockUserStore) UpdateFields(ctx context.Context, id string, patch auth.Patch) error {
	return m.Called(ctx, id, patch).Error(0)
}

// UnsetFields mocks auth.UserStore.UnsetFields.
func (m *MockUserStore) UnsetFields(ctx context.Context, id string, fields ...auth.Field) error {
	return m.Called(ctx, id, fields).Error(0)
}

// ConsumeResetChallenge mocks auth.UserStore.ConsumeResetChallenge.
func (m *MockUserStore) ConsumeResetChallenge(ctx context.Context, email, secretHash, passwordHash string, now time.Time) error {
	return m.Called(ctx, email, secretHash, passwordHash, now).Error(0)
}
