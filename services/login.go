package services

import (
	"context"
	"errors"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/internal/logger"
	"github.com/lborres/opgate/pkg/crypto"
	"go.uber.org/zap"
)

type LoginService struct {
	operators  core.OperatorStorage
	provider   core.IdentityProvider
	identities *IdentityResolver
	hasher     crypto.PasswordHandler
}

func NewLoginService(operators core.OperatorStorage, provider core.IdentityProvider, identities *IdentityResolver, hasher crypto.PasswordHandler) *LoginService {
	return &LoginService{
		operators:  operators,
		provider:   provider,
		identities: identities,
		hasher:     hasher,
	}
}

// Login checks the password against the local hash and then asks the
// identity provider for a session, provisioning the identity on first use.
func (s *LoginService) Login(ctx context.Context, input core.LoginInput) (*core.LoginResult, error) {
	email := core.NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, core.ErrCredentialsRequired
	}
	log := logger.From(ctx).With(logger.Op(core.OperationLogin), logger.Email(email))

	// Step 1: Find the operator
	op, err := s.operators.GetOperatorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrOperatorNotFound) {
			return nil, core.ErrEmailNotAuthorized
		}
		return nil, core.Internal("failed to look up operator", err)
	}
	if !op.Registered() {
		return nil, core.ErrRegistrationIncomplete
	}
	log = log.With(logger.OperatorID(op.ID))

	// Step 2: Verify the local hash
	valid, err := s.hasher.Verify(input.Password, *op.PasswordHash)
	if err != nil {
		if errors.Is(err, crypto.ErrMalformedHash) {
			return nil, core.ErrMalformedPasswordHash.Wrap(err)
		}
		return nil, core.Internal("failed to verify password", err)
	}
	if !valid {
		return nil, core.ErrInvalidPassword
	}

	s.upgradeHash(ctx, log, op, input.Password)

	// Step 3: Make sure an identity is linked
	identityID, err := s.ensureIdentity(ctx, log, op, email, input.Password)
	if err != nil {
		return nil, err
	}

	// Step 4: Sign in at the provider
	session, err := s.provider.SignInWithPassword(ctx, email, input.Password)
	if errors.Is(err, core.ErrIdentityInvalidCredentials) {
		// The local hash is authoritative. A reset that failed to reach the
		// provider leaves it with the old password, so push it once and retry.
		log.Info("provider rejected verified password, resyncing identity", logger.IdentityID(identityID))
		if uerr := s.provider.UpdateIdentityPassword(ctx, identityID, input.Password); uerr != nil {
			log.Warn("failed to resync identity password", logger.Err(uerr))
		} else {
			session, err = s.provider.SignInWithPassword(ctx, email, input.Password)
		}
	}
	if err != nil {
		return nil, core.Internal("failed to sign in", err)
	}

	log.Info("operator logged in")
	return &core.LoginResult{Session: session}, nil
}

// upgradeHash rewrites hashes from an older scheme. Failure only costs
// another attempt on the next login.
func (s *LoginService) upgradeHash(ctx context.Context, log *zap.Logger, op *core.Operator, password string) {
	rehasher, ok := s.hasher.(crypto.Rehasher)
	if !ok || !rehasher.NeedsRehash(*op.PasswordHash) {
		return
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		log.Warn("failed to rehash legacy password", logger.Err(err))
		return
	}
	if err := s.operators.UpdateOperator(ctx, op.ID, core.OperatorUpdate{PasswordHash: &hash}); err != nil {
		log.Warn("failed to store rehashed password", logger.Err(err))
		return
	}
	log.Info("legacy password hash upgraded")
}

func (s *LoginService) ensureIdentity(ctx context.Context, log *zap.Logger, op *core.Operator, email, password string) (string, error) {
	if op.IdentityID != nil && *op.IdentityID != "" {
		return *op.IdentityID, nil
	}

	ident, err := s.identities.FindByEmail(ctx, email)
	if errors.Is(err, core.ErrIdentityNotFound) {
		ident, _, err = s.identities.CreateOrAdopt(ctx, email, password)
	}
	if err != nil {
		return "", core.Internal("failed to provision identity", err)
	}

	if err := s.operators.UpdateOperator(ctx, op.ID, core.OperatorUpdate{IdentityID: &ident.ID}); err != nil {
		// The next login finds the identity by email again.
		log.Warn("failed to persist identity link", logger.IdentityID(ident.ID), logger.Err(err))
	}
	return ident.ID, nil
}
