// Package mailer delivers outbound account email.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"gatekeeper.org/internal/obs"
)

const resetSubject = "Password Reset Request"

// Sender delivers password reset messages.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

// NewSMTPSender constructs an SMTPSender. auth may be nil for open relays.
func NewSMTPSender(addr, from string, auth smtp.Auth) *SMTPSender {
	return &SMTPSender{Addr: addr, From: from, Auth: auth}
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, link string) error {
	body := resetBody(s.From, to, link)
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, body)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send reset mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resetBody(from, to, link string) []byte {
	msg := "From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + resetSubject + "\r\n" +
		"\r\n" +
		"Hello,\n\n" +
		"You have requested to reset your password. " +
		"Please click on the link below to reset your password:\n\n" +
		link + "\n\n" +
		"If you did not request a password reset, please ignore this email.\n\n" +
		"Regards,\nThe Team\n"
	return []byte(msg)
}

// LogSender writes reset links to the service log instead of sending mail.
// Used when no SMTP relay is configured (local development, tests).
type LogSender struct{}

func (LogSender) SendPasswordReset(_ context.Context, to, link string) error {
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "info",
		"msg":   "password_reset_link",
		"to":    to,
		"link":  link,
	})
	return nil
}
