package services

import (
	"context"
	"errors"

	"github.com/lborres/opgate/core"
	"github.com/lborres/opgate/internal/logger"
	"github.com/lborres/opgate/pkg/crypto"
	"go.uber.org/zap"
)

type RegistrationService struct {
	operators  core.OperatorStorage
	provider   core.IdentityProvider
	identities *IdentityResolver
	hasher     crypto.PasswordHandler
}

func NewRegistrationService(operators core.OperatorStorage, provider core.IdentityProvider, identities *IdentityResolver, hasher crypto.PasswordHandler) *RegistrationService {
	return &RegistrationService{
		operators:  operators,
		provider:   provider,
		identities: identities,
		hasher:     hasher,
	}
}

// Register sets the first password of a pre-authorized operator.
//
// It is safe to call again after a failure halfway through: an identity
// created by an earlier attempt is found and adopted instead of duplicated.
func (s *RegistrationService) Register(ctx context.Context, input core.RegisterInput) (*core.RegisterResult, error) {
	email := core.NormalizeEmail(input.Email)
	if email == "" {
		return nil, core.ErrEmailRequired
	}
	if !core.PasswordLongEnough(input.Password) {
		return nil, core.ErrPasswordTooShort
	}
	log := logger.From(ctx).With(logger.Op(core.OperationRegister), logger.Email(email))

	// Step 1: Only pre-authorized, unregistered operators may register
	op, err := s.operators.GetOperatorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrOperatorNotFound) {
			return nil, core.ErrRegistrationNotAllowed
		}
		return nil, core.Internal("failed to look up operator", err)
	}
	if op.Registered() {
		return nil, core.ErrRegistrationNotAllowed
	}
	log = log.With(logger.OperatorID(op.ID))

	// Step 2: Hash the password
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, core.Internal("failed to hash password", err)
	}

	// Step 3: Reconcile the identity
	identityID, err := s.reconcileIdentity(ctx, log, op, email, input.Password)
	if err != nil {
		return nil, err
	}

	// Step 4: Save the hash, and the link if there was none
	update := core.OperatorUpdate{PasswordHash: &hash}
	if op.IdentityID == nil {
		update.IdentityID = &identityID
	}
	if err := s.operators.UpdateOperator(ctx, op.ID, update); err != nil {
		return nil, core.Internal("failed to save registration", err)
	}
	log.Info("operator registered", logger.IdentityID(identityID))

	// Step 5: Sign in. The registration stands even if this fails.
	session, err := s.provider.SignInWithPassword(ctx, email, input.Password)
	if err != nil {
		log.Warn("automatic sign-in after registration failed", logger.Err(err))
		return &core.RegisterResult{LoginRequired: true}, nil
	}

	return &core.RegisterResult{Session: session}, nil
}

func (s *RegistrationService) reconcileIdentity(ctx context.Context, log *zap.Logger, op *core.Operator, email, password string) (string, error) {
	if op.IdentityID != nil && *op.IdentityID != "" {
		id := *op.IdentityID

		_, err := s.identities.Lookup(ctx, id)
		switch {
		case err == nil:
			if err := s.provider.UpdateIdentityPassword(ctx, id, password); err != nil {
				return "", core.Internal("failed to update identity password", err)
			}
			return id, nil
		case errors.Is(err, core.ErrIdentityNotFound):
			// The linked identity was removed at the provider; recreate it.
			log.Warn("linked identity missing, recreating", logger.IdentityID(id))
		default:
			return "", core.Internal("failed to look up identity", err)
		}
	}

	ident, adopted, err := s.identities.CreateOrAdopt(ctx, email, password)
	if err != nil {
		if errors.Is(err, core.ErrIdentityNotFound) {
			return "", core.Internal("identity already registered but not found", err)
		}
		return "", core.Internal("failed to create identity", err)
	}
	if adopted {
		if err := s.provider.UpdateIdentityPassword(ctx, ident.ID, password); err != nil {
			return "", core.Internal("failed to update identity password", err)
		}
	}
	return ident.ID, nil
}
