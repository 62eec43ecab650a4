// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package mail delivers FaceGate's outbound mail.
package mail

import (
	"bytes"
	"context"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// CodeSendFailed marks a failed delivery.
const CodeSendFailed = "SMTP_SEND_FAILED"

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send SendFunc
	now  func() time.Time
}

// NewSMTPMailer validates cfg and returns a mailer using smtp.SendMail.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	if err := checkHeader("from", cfg.From); err != nil || cfg.From == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp from address is invalid")
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, now: time.Now}, nil
}

// WithSendFunc replaces the transport. Tests use it to capture messages.
func (m *SMTPMailer) WithSendFunc(fn SendFunc) *SMTPMailer {
	m.send = fn
	return m
}

// Addr is the relay's host:port.
func (m *SMTPMailer) Addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// Send delivers one message to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code(CodeSendFailed).Wrap(err)
	}
	if to == "" {
		return oops.Code(CodeSendFailed).Errorf("recipient is required")
	}
	if err := checkHeader("to", to); err != nil {
		return err
	}
	if err := checkHeader("subject", subject); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := m.compose(to, subject, body)
	if err := m.send(m.Addr(), auth, m.cfg.From, []string{to}, msg); err != nil {
		return oops.Code(CodeSendFailed).With("addr", m.Addr()).Wrap(err)
	}
	return nil
}

func (m *SMTPMailer) compose(to, subject, body string) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + m.cfg.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + m.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\r\n")
	}
	return b.Bytes()
}

// checkHeader rejects values that would break out of their header line.
func checkHeader(name, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return oops.Code("SMTP_HEADER_INVALID").With("header", name).Errorf("header contains a line break")
	}
	return nil
}
