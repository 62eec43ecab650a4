// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

//go:build integration

package api_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const (
	email    = "Alice@Example.com"
	password = "correct-horse-42"
)

var _ = Describe("Authentication flows", func() {
	BeforeEach(func() {
		cleanupUsers()
	})

	Describe("registration and login", func() {
		It("registers with a password and a face and logs in with either", func() {
			status, resp := call(http.MethodPost, "/api/auth/register", map[string]any{
				"email":         email,
				"password":      password,
				"face_encoding": encoding(0.1),
			}, "")
			Expect(status).To(Equal(http.StatusCreated))
			Expect(resp.Success).To(BeTrue())
			Expect(resp.User.Email).To(Equal("alice@example.com"))
			Expect(resp.User.HasPassword).To(BeTrue())
			Expect(resp.User.HasFace).To(BeTrue())

			status, resp = call(http.MethodPost, "/api/auth/login", map[string]any{
				"email":    email,
				"method":   "password",
				"password": password,
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(resp.Token).NotTo(BeEmpty())

			status, resp = call(http.MethodPost, "/api/auth/verify-token", nil, resp.Token)
			Expect(status).To(Equal(http.StatusOK))
			Expect(resp.User.Email).To(Equal("alice@example.com"))

			status, resp = call(http.MethodPost, "/api/auth/login", map[string]any{
				"email":         email,
				"method":        "face",
				"face_encoding": encoding(0.11),
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(resp.Token).NotTo(BeEmpty())
		})

		It("rejects a second registration of the same email", func() {
			status, _ := call(http.MethodPost, "/api/auth/register", map[string]any{
				"email": email, "password": password,
			}, "")
			Expect(status).To(Equal(http.StatusCreated))

			status, resp := call(http.MethodPost, "/api/auth/register", map[string]any{
				"email": "alice@example.com", "password": password,
			}, "")
			Expect(status).To(Equal(http.StatusConflict))
			Expect(resp.Success).To(BeFalse())
		})

		It("gives the same answer for a wrong password and an unknown user", func() {
			call(http.MethodPost, "/api/auth/register", map[string]any{
				"email": email, "password": password,
			}, "")

			wrongStatus, wrong := call(http.MethodPost, "/api/auth/login", map[string]any{
				"email": email, "method": "password", "password": "wrong-horse-42",
			}, "")
			unknownStatus, unknown := call(http.MethodPost, "/api/auth/login", map[string]any{
				"email": "bob@example.com", "method": "password", "password": password,
			}, "")

			Expect(wrongStatus).To(Equal(http.StatusUnauthorized))
			Expect(unknownStatus).To(Equal(wrongStatus))
			Expect(unknown.Message).To(Equal(wrong.Message))
		})

		It("rejects a face that does not match", func() {
			call(http.MethodPost, "/api/auth/register", map[string]any{
				"email": email, "face_encoding": encoding(0.1),
			}, "")

			status, resp := call(http.MethodPost, "/api/auth/login", map[string]any{
				"email": email, "method": "face", "face_encoding": encoding(0.9),
			}, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(resp.Token).To(BeEmpty())
		})
	})

	Describe("password reset", func() {
		It("resets the password with the emailed code exactly once", func() {
			call(http.MethodPost, "/api/auth/register", map[string]any{
				"email": email, "password": password,
			}, "")

			status, _ := call(http.MethodPost, "/api/auth/forgot-password", map[string]any{
				"email": email, "method": "email",
			}, "")
			Expect(status).To(Equal(http.StatusOK))

			code := env.outbox.lastResetCode()
			Expect(code).NotTo(BeEmpty())

			status, _ = call(http.MethodPost, "/api/auth/verify-reset-code", map[string]any{
				"email": email, "code": code,
			}, "")
			Expect(status).To(Equal(http.StatusOK))

			const newPassword = "battery-staple-7"
			status, _ = call(http.MethodPost, "/api/auth/reset-password", map[string]any{
				"email": email, "code": code, "new_password": newPassword,
			}, "")
			Expect(status).To(Equal(http.StatusOK))

			status, _ = call(http.MethodPost, "/api/auth/reset-password", map[string]any{
				"email": email, "code": code, "new_password": "another-pass-9",
			}, "")
			Expect(status).To(Equal(http.StatusUnauthorized))

			status, _ = call(http.MethodPost, "/api/auth/login", map[string]any{
				"email": email, "method": "password", "password": password,
			}, "")
			Expect(status).To(Equal(http.StatusUnauthorized))

			status, _ = call(http.MethodPost, "/api/auth/login", map[string]any{
				"email": email, "method": "password", "password": newPassword,
			}, "")
			Expect(status).To(Equal(http.StatusOK))
		})

		It("reports success for an unknown email without sending mail", func() {
			before := env.outbox.lastResetCode()

			status, resp := call(http.MethodPost, "/api/auth/forgot-password", map[string]any{
				"email": "nobody@example.com", "method": "email",
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(resp.Success).To(BeTrue())
			Expect(env.outbox.lastResetCode()).To(Equal(before))
		})
	})

	Describe("face management", func() {
		var token string

		BeforeEach(func() {
			call(http.MethodPost, "/api/auth/register", map[string]any{
				"email": email, "password": password,
			}, "")
			status, resp := call(http.MethodPost, "/api/auth/login", map[string]any{
				"email": email, "method": "password", "password": password,
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			token = resp.Token
		})

		It("enrolls, verifies and removes a face", func() {
			status, _ := call(http.MethodPost, "/api/face/update", map[string]any{
				"face_encoding": encoding(0.2),
			}, token)
			Expect(status).To(Equal(http.StatusOK))

			status, resp := call(http.MethodPost, "/api/face/verify", map[string]any{
				"email": email, "face_encoding": encoding(0.2),
			}, "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(resp.Result.Match).To(BeTrue())
			Expect(resp.Result.Distance).To(BeNumerically("~", 0, 1e-9))

			status, _ = call(http.MethodDelete, "/api/face/delete", nil, token)
			Expect(status).To(Equal(http.StatusOK))

			status, _ = call(http.MethodPost, "/api/face/verify", map[string]any{
				"email": email, "face_encoding": encoding(0.2),
			}, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
		})

		It("refuses to change a face without a token", func() {
			status, resp := call(http.MethodPost, "/api/face/update", map[string]any{
				"face_encoding": encoding(0.2),
			}, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(resp.Success).To(BeFalse())

			status, _ = call(http.MethodDelete, "/api/face/delete", nil, "")
			Expect(status).To(Equal(http.StatusUnauthorized))

			status, _ = call(http.MethodPost, "/api/auth/login", map[string]any{
				"email": email, "method": "face", "face_encoding": encoding(0.2),
			}, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
		})
	})
})
