// Package mail delivers password reset links.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"strings"
	"time"

	gomail "github.com/go-mail/mail"
	"github.com/lborres/opgate"
	"github.com/lborres/opgate/internal/logger"
)

const resetSubject = "Reset your dashboard password"

// TLS modes accepted by SMTPConfig.TLSMode.
const (
	TLSModeStartTLS = "starttls"
	TLSModeTLS      = "tls"
	TLSModeNone     = "none"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string
}

type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(m *gomail.Message) error
}

var _ opgate.ResetNotifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.TLSMode == "" {
		cfg.TLSMode = TLSModeStartTLS
	}
	n := &SMTPNotifier{cfg: cfg}
	n.send = n.dialAndSend
	return n
}

func (s *SMTPNotifier) SendPasswordReset(ctx context.Context, n opgate.ResetNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text, htmlBody := renderReset(n)

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", n.Email)
	m.SetHeader("Subject", resetSubject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", htmlBody)

	if err := s.send(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	logger.From(ctx).Debug("reset email sent", logger.Email(n.Email))
	return nil
}

func (s *SMTPNotifier) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}

	switch s.cfg.TLSMode {
	case TLSModeTLS, "ssl":
		d.SSL = true
	case TLSModeNone:
		d.StartTLSPolicy = gomail.NoStartTLS
	default:
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}
	return d.DialAndSend(m)
}

func renderReset(n opgate.ResetNotification) (text, htmlBody string) {
	expires := n.ExpiresAt.UTC().Format(time.RFC1123)

	var b strings.Builder
	b.WriteString("A password reset was requested for your dashboard account.\n\n")
	b.WriteString("Open this link to choose a new password:\n")
	b.WriteString(n.Link)
	b.WriteString("\n\nThe link expires ")
	b.WriteString(expires)
	b.WriteString(". If you did not ask for a reset you can ignore this email.\n")
	text = b.String()

	link := html.EscapeString(n.Link)
	htmlBody = "<p>A password reset was requested for your dashboard account.</p>" +
		`<p><a href="` + link + `">Choose a new password</a></p>` +
		"<p>The link expires " + html.EscapeString(expires) + ". If you did not ask for a reset you can ignore this email.</p>"
	return text, htmlBody
}
