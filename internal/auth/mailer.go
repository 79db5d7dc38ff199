package auth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// Mailer delivers account verification links.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes the verification link to the log instead of sending mail.
// It is the default for single-operator installs.
type LogMailer struct {
	Logger  *slog.Logger
	BaseURL string
}

func (m LogMailer) SendVerification(_ context.Context, email, token string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	link := strings.TrimRight(m.BaseURL, "/") + "/api/v1/auth/verify?token=" + url.QueryEscape(token)
	logger.Info("verification link", "email", email, "link", link)
	return nil
}
