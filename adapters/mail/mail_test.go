package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gomail "github.com/go-mail/mail"
	"github.com/lborres/opgate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notification() opgate.ResetNotification {
	return opgate.ResetNotification{
		Email:     "ana@example.com",
		Link:      "https://dash.example.com/reset-password?token=abc&email=ana%40example.com",
		ExpiresAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSMTPNotifier_BuildsMessage(t *testing.T) {
	// Arrange
	var sent *gomail.Message
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	n.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	// Act
	err := n.SendPasswordReset(context.Background(), notification())

	// Assert
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, []string{"ana@example.com"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"noreply@example.com"}, sent.GetHeader("From"))
	assert.Equal(t, []string{resetSubject}, sent.GetHeader("Subject"))
	assert.Equal(t, TLSModeStartTLS, n.cfg.TLSMode)
}

func TestSMTPNotifier_SendError(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	n.send = func(*gomail.Message) error { return errors.New("connection refused") }

	err := n.SendPasswordReset(context.Background(), notification())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSMTPNotifier_CanceledContext(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com"})
	n.send = func(*gomail.Message) error {
		t.Fatal("send should not be called")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.SendPasswordReset(ctx, notification()), context.Canceled)
}

func TestRenderReset(t *testing.T) {
	text, html := renderReset(notification())

	assert.Contains(t, text, notification().Link)
	assert.Contains(t, text, "Sun, 01 Mar 2026 12:00:00 UTC")
	assert.Contains(t, html, `href="https://dash.example.com/reset-password?token=abc&amp;email=ana%40example.com"`)
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewConsoleNotifier(&buf)

	require.NoError(t, n.SendPasswordReset(context.Background(), notification()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "password reset for ana@example.com"))
	assert.Contains(t, out, "2026-03-01T12:00:00Z")
	assert.Contains(t, out, notification().Link)
}
