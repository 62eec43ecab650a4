// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"

	"github.com/facegate/facegate/internal/auth"
)

// maxBodyBytes bounds request bodies. Face images arrive inline as base64.
const maxBodyBytes = 16 << 20

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email        string    `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Password     string    `json:"password,omitempty"`
	FaceImage    string    `json:"face_image,omitempty" jsonschema:"description=base64 image, optionally a data URL"`
	FaceEncoding []float64 `json:"face_encoding,omitempty" jsonschema:"description=precomputed face encoding"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email        string    `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Method       string    `json:"method" jsonschema:"enum=password,enum=face"`
	Password     string    `json:"password,omitempty"`
	FaceImage    string    `json:"face_image,omitempty"`
	FaceEncoding []float64 `json:"face_encoding,omitempty"`
}

// ForgotPasswordRequest is the body of POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email        string    `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Method       string    `json:"method" jsonschema:"enum=email,enum=face"`
	FaceImage    string    `json:"face_image,omitempty"`
	FaceEncoding []float64 `json:"face_encoding,omitempty"`
}

// VerifyResetCodeRequest is the body of POST /api/auth/verify-reset-code.
type VerifyResetCodeRequest struct {
	Email string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Code  string `json:"code" jsonschema:"minLength=1"`
}

// ResetPasswordRequest is the body of POST /api/auth/reset-password.
type ResetPasswordRequest struct {
	Email       string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Code        string `json:"code" jsonschema:"minLength=1"`
	NewPassword string `json:"new_password" jsonschema:"minLength=1"`
}

// FaceRequest is the body of POST /api/face/verify.
type FaceRequest struct {
	Email        string    `json:"email" jsonschema:"minLength=1,maxLength=254"`
	FaceImage    string    `json:"face_image,omitempty"`
	FaceEncoding []float64 `json:"face_encoding,omitempty"`
}

// FaceUpdateRequest is the body of POST /api/face/update. The account comes
// from the bearer token.
type FaceUpdateRequest struct {
	FaceImage    string    `json:"face_image,omitempty"`
	FaceEncoding []float64 `json:"face_encoding,omitempty"`
}

// requestTypes names every request body for schema generation.
var requestTypes = map[string]any{
	"register":          &RegisterRequest{},
	"login":             &LoginRequest{},
	"forgot-password":   &ForgotPasswordRequest{},
	"verify-reset-code": &VerifyResetCodeRequest{},
	"reset-password":    &ResetPasswordRequest{},
	"face":              &FaceRequest{},
	"face-update":       &FaceUpdateRequest{},
}

// RequestNames lists the request schemas in a stable order.
func RequestNames() []string {
	names := make([]string, 0, len(requestTypes))
	for name := range requestTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenerateSchema returns the JSON Schema of the named request body.
func GenerateSchema(name string) ([]byte, error) {
	v, ok := requestTypes[name]
	if !ok {
		return nil, oops.With("name", name).Errorf("unknown request schema")
	}
	data, err := json.MarshalIndent(reflectSchema(v), "", "  ")
	if err != nil {
		return nil, oops.With("name", name).Wrap(err)
	}
	return data, nil
}

func reflectSchema(v any) *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	return r.Reflect(v)
}

type compiled struct {
	once   sync.Once
	schema *jschema.Schema
	err    error
}

var schemaCache sync.Map // reflect.Type -> *compiled

// compiledSchema compiles the schema of v's type once.
func compiledSchema(v any) (*jschema.Schema, error) {
	t := reflect.TypeOf(v)
	entry, _ := schemaCache.LoadOrStore(t, &compiled{})
	c := entry.(*compiled) //nolint:errcheck // only *compiled is stored

	c.once.Do(func() {
		raw, err := json.Marshal(reflectSchema(v))
		if err != nil {
			c.err = oops.Wrap(err)
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			c.err = oops.Wrap(err)
			return
		}
		url := t.Elem().Name() + ".json"
		compiler := jschema.NewCompiler()
		if err := compiler.AddResource(url, doc); err != nil {
			c.err = oops.Wrap(err)
			return
		}
		c.schema, c.err = compiler.Compile(url)
	})
	return c.schema, c.err
}

// decode reads r's body into dst after validating it against dst's schema.
// dst must be a pointer to one of the request types.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(auth.CodeValidation).With("field", "body").Errorf("request body is too large")
		}
		return oops.Code(auth.CodeValidation).With("field", "body").Errorf("request body could not be read")
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code(auth.CodeValidation).With("field", "body").Errorf("request body must be a JSON object")
	}

	sch, err := compiledSchema(dst)
	if err != nil {
		return oops.Code("REQUEST_SCHEMA_FAILED").Wrap(err)
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jschema.ValidationError
		if errors.As(err, &ve) {
			field, msg := violation(ve)
			return oops.Code(auth.CodeValidation).With("field", field).Errorf("%s", msg)
		}
		return oops.Code(auth.CodeValidation).Errorf("request body is invalid")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code(auth.CodeValidation).With("field", "body").Errorf("request body is invalid")
	}
	return nil
}

// violation reduces a validation error to the deepest reported problem.
func violation(ve *jschema.ValidationError) (string, string) {
	out := ve.BasicOutput()
	for i := len(out.Errors) - 1; i >= 0; i-- {
		unit := out.Errors[i]
		if unit.Error == nil {
			continue
		}
		field := strings.TrimPrefix(unit.InstanceLocation, "/")
		msg := unit.Error.String()
		if field == "" {
			return "body", msg
		}
		return field, field + ": " + msg
	}
	return "body", "request body is invalid"
}
