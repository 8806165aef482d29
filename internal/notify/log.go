// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes verification links to the log instead of sending mail.
// It is meant for local development where no SendGrid key is configured.
type LogNotifier struct {
	frontendURL string
	logger      *slog.Logger
}

// NewLogNotifier creates a LogNotifier that logs links under frontendURL.
func NewLogNotifier(frontendURL string, logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{frontendURL: frontendURL, logger: logger}
}

// SendVerificationLink warns that no mail was sent. The link itself carries a
// live token and is only logged at debug level.
func (n *LogNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	link, err := VerificationLink(n.frontendURL, token)
	if err != nil {
		return err
	}
	n.logger.WarnContext(ctx, "verification email not sent: no mail provider configured", "email", email)
	n.logger.DebugContext(ctx, "verification link", "email", email, "link", link)
	return nil
}
