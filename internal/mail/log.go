// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// LogMailer prints messages to a writer instead of delivering them. It backs
// dev_mode, where no relay is configured. Only the recipient and subject go
// to the logger; the body, which may carry a reset link, goes to w.
type LogMailer struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer writing to w.
func NewLogMailer(w io.Writer, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{w: w, logger: logger}
}

// Send writes the message to the configured writer.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := fmt.Fprintf(m.w, "To: %s\nSubject: %s\n\n%s\n", to, subject, body); err != nil {
		return oops.Code(CodeSendFailed).With("operation", "write message").Wrap(err)
	}
	m.logger.InfoContext(ctx, "mail captured", "to", to, "subject", subject)
	return nil
}
