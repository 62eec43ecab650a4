// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Mailer delivers plain-text mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ResetMailSubject is the subject line of reset mails.
const ResetMailSubject = "Password Reset Request"

// ResetLink appends the secret and email to the configured reset page URL.
func ResetLink(base, secret, email string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", oops.Code("RESET_LINK_INVALID").With("base", base).Wrap(err)
	}
	q := u.Query()
	q.Set("token", secret)
	q.Set("email", email)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResetMailBody renders the reset mail for link, stating how long it is valid.
func ResetMailBody(link string, ttl time.Duration) string {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("We received a request to reset the password of your FaceGate account.\n")
	b.WriteString("Open the link below to choose a new password:\n\n")
	b.WriteString(link)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "This link will expire in %s.\n\n", humanDuration(ttl))
	b.WriteString("If you did not request a password reset, you can ignore this email.\n")
	return b.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
