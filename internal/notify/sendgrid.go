// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/oops"
)

// DefaultSendGridURL is the SendGrid v3 API endpoint.
const DefaultSendGridURL = "https://api.sendgrid.com"

const mailSendPath = "/v3/mail/send"

// SendGridConfig configures SendGridNotifier.
type SendGridConfig struct {
	APIKey      string
	SenderEmail string
	FrontendURL string
	// BaseURL overrides DefaultSendGridURL.
	BaseURL string
	Timeout time.Duration
	// LinkTTL is the verification token lifetime quoted in the email.
	LinkTTL time.Duration
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridMessage struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// SendGridNotifier sends verification emails through the SendGrid v3 mail API.
type SendGridNotifier struct {
	client *resty.Client
	cfg    SendGridConfig
	logger *slog.Logger
}

// NewSendGridNotifier validates cfg and builds the HTTP client.
func NewSendGridNotifier(cfg SendGridConfig, logger *slog.Logger) (*SendGridNotifier, error) {
	switch {
	case cfg.APIKey == "":
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("sendgrid api key is required")
	case cfg.SenderEmail == "":
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("sender email is required")
	case cfg.FrontendURL == "":
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("frontend url is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSendGridURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.DebugContext(resp.Request.Context(), "sendgrid call completed",
			"status", resp.StatusCode(),
			"duration", resp.Time())
		return nil
	})

	return &SendGridNotifier{client: client, cfg: cfg, logger: logger}, nil
}

// SendVerificationLink mails email a link carrying token. A non-2xx answer
// from SendGrid is an error; nothing is retried.
func (n *SendGridNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	link, err := VerificationLink(n.cfg.FrontendURL, token)
	if err != nil {
		return err
	}
	body, err := RenderVerificationEmail(link, n.cfg.LinkTTL)
	if err != nil {
		return err
	}

	msg := sendGridMessage{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: email}}}},
		From:             sendGridAddress{Email: n.cfg.SenderEmail},
		Subject:          VerificationSubject,
		Content:          []sendGridContent{{Type: "text/html", Value: body}},
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(mailSendPath)
	if err != nil {
		return oops.Code(CodeNotifyFailed).
			With("operation", "sendgrid mail send").
			Wrap(err)
	}
	if !resp.IsSuccess() {
		return oops.Code(CodeNotifyFailed).
			With("operation", "sendgrid mail send").
			With("status", resp.StatusCode()).
			With("response", resp.String()).
			Errorf("sendgrid rejected message with status %d", resp.StatusCode())
	}

	n.logger.InfoContext(ctx, "verification email accepted", "status", resp.StatusCode())
	return nil
}
