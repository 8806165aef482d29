// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers verification links to people signing up.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// CodeNotifyFailed matches auth.CodeNotifyFailed so failures map to the
// same response without this package importing auth.
const CodeNotifyFailed = "NOTIFY_FAILED"

// VerificationSubject is the subject line of verification emails.
const VerificationSubject = "Verify Your Email Address"

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>Verify Your Email Address</h2>
    <p>Thank you for signing up! Please click the button below to verify your email and set your password:</p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="{{.Link}}" style="background-color: #4CAF50; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; display: inline-block;">Verify Email</a>
    </div>
    <p>If the button doesn't work, you can copy and paste this link into your browser:</p>
    <p style="word-break: break-all;">{{.Link}}</p>
    <p>This link will expire in {{.Expiry}}.</p>
    <p>If you didn't request this verification, please ignore this email.</p>
  </div>
</body>
</html>
`))

// VerificationLink returns <frontendURL>/verify?token=<token>.
func VerificationLink(frontendURL, token string) (string, error) {
	base, err := url.Parse(strings.TrimRight(frontendURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", oops.Code(CodeNotifyFailed).
			With("frontend_url", frontendURL).
			Errorf("frontend url must be absolute")
	}
	link := base.JoinPath("verify")
	link.RawQuery = url.Values{"token": {token}}.Encode()
	return link.String(), nil
}

// RenderVerificationEmail renders the HTML body for link. ttl is shown to the
// reader as the link lifetime.
func RenderVerificationEmail(link string, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	err := verificationTemplate.Execute(&buf, struct {
		Link   string
		Expiry string
	}{Link: link, Expiry: humanDuration(ttl)})
	if err != nil {
		return "", oops.Code(CodeNotifyFailed).With("operation", "render verification email").Wrap(err)
	}
	return buf.String(), nil
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
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
