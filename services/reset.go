package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/internal/logger"
	"github.com/lborres/opgate/pkg/crypto"
)

const (
	DefaultResetTTL = time.Hour

	ResetRequestedMessage = "If the email is registered, you will receive a link to reset your password."
	ResetCompletedMessage = "Password reset successfully."

	resetPath = "/reset-password"
)

type PasswordResetService struct {
	operators    core.OperatorStorage
	provider     core.IdentityProvider
	hasher       crypto.PasswordHandler
	notifier     core.ResetNotifier
	dashboardURL string
	ttl          time.Duration
	now          func() time.Time
}

type ResetOption func(*PasswordResetService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ResetOption {
	return func(s *PasswordResetService) { s.now = now }
}

func WithResetTTL(ttl time.Duration) ResetOption {
	return func(s *PasswordResetService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithNotifier(n core.ResetNotifier) ResetOption {
	return func(s *PasswordResetService) { s.notifier = n }
}

func NewPasswordResetService(operators core.OperatorStorage, provider core.IdentityProvider, hasher crypto.PasswordHandler, dashboardURL string, opts ...ResetOption) *PasswordResetService {
	s := &PasswordResetService{
		operators:    operators,
		provider:     provider,
		hasher:       hasher,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		ttl:          DefaultResetTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestPasswordReset issues a reset token for a registered operator.
//
// The result is the same whether or not the email belongs to anyone. Store
// and delivery failures are only logged, so callers cannot tell which
// accounts exist.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, input core.ResetRequestInput) (*core.ResetRequestResult, error) {
	email := core.NormalizeEmail(input.Email)
	if email == "" {
		return nil, core.ErrEmailRequired
	}
	log := logger.From(ctx).With(logger.Op("requestPasswordReset"), logger.Email(email))
	generic := &core.ResetRequestResult{Message: ResetRequestedMessage}

	op, err := s.operators.GetRegisteredOperatorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrOperatorNotFound) {
			log.Debug("reset requested for unknown or unregistered email")
			return generic, nil
		}
		log.Error("failed to look up operator", logger.Err(err))
		return generic, nil
	}
	log = log.With(logger.OperatorID(op.ID))

	pair, err := crypto.GenerateHashedToken(crypto.DefaultTokenLength)
	if err != nil {
		log.Error("failed to generate reset token", logger.Err(err))
		return generic, nil
	}
	expiresAt := s.now().Add(s.ttl)

	// A new request replaces any token still pending.
	update := core.OperatorUpdate{ResetToken: &core.ResetToken{Hash: pair.Hash, ExpiresAt: expiresAt}}
	if err := s.operators.UpdateOperator(ctx, op.ID, update); err != nil {
		log.Error("failed to store reset token", logger.Err(err))
		return generic, nil
	}

	if s.notifier == nil {
		log.Warn("no reset notifier configured, reset link not delivered")
		return generic, nil
	}
	n := core.ResetNotification{
		Email:     email,
		Link:      BuildResetLink(s.dashboardURL, pair.Token, email),
		ExpiresAt: expiresAt,
		StoreID:   op.StoreID,
	}
	if err := s.notifier.SendPasswordReset(ctx, n); err != nil {
		log.Error("failed to deliver reset link", logger.Err(err))
		return generic, nil
	}

	log.Info("reset link issued")
	return generic, nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *PasswordResetService) ResetPassword(ctx context.Context, input core.ResetPasswordInput) (*core.ResetPasswordResult, error) {
	email := core.NormalizeEmail(input.Email)
	if email == "" || input.Token == "" {
		return nil, core.ErrResetParamsIncomplete
	}
	if !core.PasswordLongEnough(input.NewPassword) {
		return nil, core.ErrPasswordTooShort
	}
	log := logger.From(ctx).With(logger.Op(core.OperationResetPassword), logger.Email(email))

	tokenHash := crypto.HashToken(input.Token)

	op, err := s.operators.GetOperatorByResetToken(ctx, email, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrOperatorNotFound) {
			return nil, core.ErrResetTokenInvalid
		}
		return nil, core.Internal("failed to look up reset token", err)
	}
	log = log.With(logger.OperatorID(op.ID))

	now := s.now()
	if op.ResetTokenExpiresAt == nil || op.ResetTokenExpiresAt.Before(now) {
		return nil, core.ErrResetTokenExpired
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return nil, core.Internal("failed to hash password", err)
	}

	// Hash write and token clearing happen in one conditional statement, so
	// of two concurrent consumers only one gets past here.
	if err := s.operators.ConsumeResetToken(ctx, op.ID, tokenHash, hash, now); err != nil {
		if errors.Is(err, core.ErrResetTokenConsumed) {
			return nil, core.ErrResetTokenInvalid
		}
		return nil, core.Internal("failed to update password", err)
	}
	log.Info("password reset")

	result := &core.ResetPasswordResult{Message: ResetCompletedMessage, IdentitySynced: true}
	if op.IdentityID != nil && *op.IdentityID != "" {
		if err := s.provider.UpdateIdentityPassword(ctx, *op.IdentityID, input.NewPassword); err != nil {
			// Login pushes the password again when the provider rejects it.
			log.Warn("failed to propagate new password to identity", logger.IdentityID(*op.IdentityID), logger.Err(err))
			result.IdentitySynced = false
		}
	}
	return result, nil
}

// BuildResetLink returns {base}/reset-password?token=...&email=...
func BuildResetLink(base, token, email string) string {
	return strings.TrimRight(base, "/") + resetPath +
		"?token=" + url.QueryEscape(token) +
		"&email=" + url.QueryEscape(email)
}
