// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Encoding error codes. The encoder raises these before any comparison runs.
const (
	CodeNoFace        = "FACE_NO_FACE"
	CodeMultipleFaces = "FACE_MULTIPLE_FACES"
	CodeDecodeFailed  = "FACE_DECODE_FAILED"
	CodeEncoderFailed = "FACE_ENCODER_FAILED"
)

// Encoding failures, matchable with errors.Is.
var (
	ErrNoFace        = errors.New("no face detected in image")
	ErrMultipleFaces = errors.New("multiple faces detected in image")
	ErrDecode        = errors.New("image could not be decoded")
)

// Encoder turns an image into a face encoding.
type Encoder interface {
	Encode(ctx context.Context, image []byte) (Vector, error)
}

// maxEncoderResponse bounds how much of the encoder reply is read.
const maxEncoderResponse = 1 << 20

// HTTPEncoder calls an external embedding service. The service receives the
// raw image bytes and answers {"encodings": [[...], ...]}, one entry per face
// found. A 422 reply means the image itself was unreadable.
type HTTPEncoder struct {
	url    string
	client *http.Client
}

// NewHTTPEncoder creates an HTTPEncoder for the service at url.
func NewHTTPEncoder(url string, timeout time.Duration) (*HTTPEncoder, error) {
	if url == "" {
		return nil, oops.Code("FACE_ENCODER_CONFIG").Errorf("encoder url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEncoder{url: url, client: &http.Client{Timeout: timeout}}, nil
}

type encodeResponse struct {
	Encodings []Vector `json:"encodings"`
}

// Encode sends image to the service and returns the single encoding found.
func (e *HTTPEncoder) Encode(ctx context.Context, image []byte) (Vector, error) {
	if len(image) == 0 {
		return nil, oops.Code(CodeDecodeFailed).Wrap(ErrDecode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(image))
	if err != nil {
		return nil, oops.Code(CodeEncoderFailed).With("operation", "build request").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, oops.Code(CodeEncoderFailed).With("operation", "call encoder").Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, oops.Code(CodeDecodeFailed).Wrap(ErrDecode)
	case resp.StatusCode != http.StatusOK:
		return nil, oops.Code(CodeEncoderFailed).
			With("status", resp.StatusCode).
			Errorf("encoder returned unexpected status")
	}

	var out encodeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEncoderResponse)).Decode(&out); err != nil {
		return nil, oops.Code(CodeEncoderFailed).With("operation", "decode response").Wrap(err)
	}

	switch len(out.Encodings) {
	case 0:
		return nil, oops.Code(CodeNoFace).Wrap(ErrNoFace)
	case 1:
	default:
		return nil, oops.Code(CodeMultipleFaces).
			With("faces", len(out.Encodings)).
			Wrap(ErrMultipleFaces)
	}

	v := out.Encodings[0]
	if err := v.Validate(); err != nil {
		return nil, oops.Code(CodeEncoderFailed).Errorf("encoder returned an unusable encoding: %v", err)
	}
	return v, nil
}

// DecodeImage decodes a base64 image, accepting an optional data URL prefix
// such as "data:image/jpeg;base64,".
func DecodeImage(s string) ([]byte, error) {
	if _, payload, ok := strings.Cut(s, ","); ok {
		s = payload
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, oops.Code(CodeDecodeFailed).Wrap(ErrDecode)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, oops.Code(CodeDecodeFailed).With("cause", err.Error()).Wrap(ErrDecode)
	}
	return data, nil
}
