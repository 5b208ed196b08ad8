package core

import (
	"context"
	"time"
)

// OperatorUpdate lists the fields a plain update writes. Nil fields are left alone.
type OperatorUpdate struct {
	PasswordHash *string

	// IdentityID links the operator to an external identity. A link that is
	// already present is kept; stores never overwrite or clear it.
	IdentityID *string

	// ResetToken replaces the pending reset token and its expiry together.
	ResetToken *ResetToken
}

// Empty reports whether the update would not write anything.
func (u OperatorUpdate) Empty() bool {
	return u.PasswordHash == nil && u.IdentityID == nil && u.ResetToken == nil
}

type OperatorStorage interface {
	// CreateOperator pre-authorizes an email. The operator starts without
	// a password hash and without an identity.
	CreateOperator(ctx context.Context, op *Operator) error

	// Query methods. All return ErrOperatorNotFound when no row matches.
	GetOperatorByEmail(ctx context.Context, email string) (*Operator, error)
	GetRegisteredOperatorByEmail(ctx context.Context, email string) (*Operator, error)
	GetOperatorByResetToken(ctx context.Context, email, tokenHash string) (*Operator, error)

	// Plain update
	UpdateOperator(ctx context.Context, id string, update OperatorUpdate) error

	// ConsumeResetToken writes passwordHash and clears both reset token
	// fields in a single statement, but only while the stored token still
	// equals tokenHash and has not expired at now. Returns
	// ErrResetTokenConsumed when the condition no longer holds.
	ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error
}
