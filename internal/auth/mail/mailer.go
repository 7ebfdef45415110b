// Package mail delivers transactional messages for the auth flows. The only
// message today is the email verification link.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer delivers through a standard SMTP relay.
type SMTPMailer struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		Wrap(body, 77),
	}, "\r\n")

	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of delivering them. Used in
// development when no relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail (not delivered)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

// Wrap breaks body text at word boundaries so no line exceeds width. Lines
// without spaces (long URLs) are left intact.
func Wrap(text string, width int) string {
	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(wrapLine(line, width))
	}
	return out.String()
}

func wrapLine(line string, width int) string {
	if len(line) <= width {
		return line
	}
	var out strings.Builder
	col := 0
	for i, word := range strings.Fields(line) {
		if i > 0 {
			if col+1+len(word) > width {
				out.WriteByte('\n')
				col = 0
			} else {
				out.WriteByte(' ')
				col++
			}
		}
		out.WriteString(word)
		col += len(word)
	}
	return out.String()
}
