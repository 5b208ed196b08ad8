package services

import (
	"context"
	"time"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/pkg/crypto"
)

// AuthService is the single entry point the HTTP adapters talk to. Each
// operation is owned by its own service; they share nothing but the
// identity resolver.
type AuthService struct {
	login    *LoginService
	register *RegistrationService
	reset    *PasswordResetService
}

// Ensure AuthService implements AuthHandler
var _ core.AuthHandler = (*AuthService)(nil)

type AuthConfig struct {
	Operators    core.OperatorStorage
	Provider     core.IdentityProvider
	Cache        core.IdentityCache // optional
	Hasher       crypto.PasswordHandler
	Notifier     core.ResetNotifier // optional
	DashboardURL string
	ResetTTL     time.Duration
	Clock        func() time.Time // optional
}

func NewAuthService(cfg AuthConfig) *AuthService {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = crypto.NewMigratingHasher()
	}

	identities := NewIdentityResolver(cfg.Provider, cfg.Cache)

	opts := []ResetOption{WithResetTTL(cfg.ResetTTL), WithNotifier(cfg.Notifier)}
	if cfg.Clock != nil {
		opts = append(opts, WithClock(cfg.Clock))
	}

	return &AuthService{
		login:    NewLoginService(cfg.Operators, cfg.Provider, identities, hasher),
		register: NewRegistrationService(cfg.Operators, cfg.Provider, identities, hasher),
		reset:    NewPasswordResetService(cfg.Operators, cfg.Provider, hasher, cfg.DashboardURL, opts...),
	}
}

func (s *AuthService) Login(ctx context.Context, input core.LoginInput) (*core.LoginResult, error) {
	return s.login.Login(ctx, input)
}

func (s *AuthService) Register(ctx context.Context, input core.RegisterInput) (*core.RegisterResult, error) {
	return s.register.Register(ctx, input)
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, input core.ResetRequestInput) (*core.ResetRequestResult, error) {
	return s.reset.RequestPasswordReset(ctx, input)
}

func (s *AuthService) ResetPassword(ctx context.Context, input core.ResetPasswordInput) (*core.ResetPasswordResult, error) {
	return s.reset.ResetPassword(ctx, input)
}
