package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lborres/opgate"
)

const uniqueViolation = "23505"

const operatorColumns = `id::text, email, password_hash, identity_id, store_id, reset_token_hash, reset_token_expires_at, created_at, updated_at`

func (a *Adapter) CreateOperator(ctx context.Context, op *opgate.Operator) error {
	q := `INSERT INTO operators (id, email, store_id) VALUES ($1, $2, $3) RETURNING created_at, updated_at`

	id := uuid.NewString()
	email := opgate.NormalizeEmail(op.Email)

	var createdAt, updatedAt time.Time
	err := a.pool.QueryRow(ctx, q, id, email, op.StoreID).Scan(&createdAt, &updatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return opgate.ErrOperatorExists
		}
		return err
	}

	op.ID = id
	op.Email = email
	op.PasswordHash = nil
	op.IdentityID = nil
	op.ResetTokenHash = nil
	op.ResetTokenExpiresAt = nil
	op.CreatedAt = createdAt
	op.UpdatedAt = updatedAt
	return nil
}

func (a *Adapter) GetOperatorByEmail(ctx context.Context, email string) (*opgate.Operator, error) {
	q := `SELECT ` + operatorColumns + ` FROM operators WHERE lower(email) = $1`
	return a.queryOperator(ctx, q, opgate.NormalizeEmail(email))
}

func (a *Adapter) GetRegisteredOperatorByEmail(ctx context.Context, email string) (*opgate.Operator, error) {
	q := `SELECT ` + operatorColumns + ` FROM operators WHERE lower(email) = $1 AND password_hash IS NOT NULL`
	return a.queryOperator(ctx, q, opgate.NormalizeEmail(email))
}

func (a *Adapter) GetOperatorByResetToken(ctx context.Context, email, tokenHash string) (*opgate.Operator, error) {
	q := `SELECT ` + operatorColumns + ` FROM operators WHERE lower(email) = $1 AND reset_token_hash = $2`
	return a.queryOperator(ctx, q, opgate.NormalizeEmail(email), tokenHash)
}

// UpdateOperator writes the non-nil fields of update. identity_id is only
// filled when empty.
func (a *Adapter) UpdateOperator(ctx context.Context, id string, update opgate.OperatorUpdate) error {
	if update.Empty() {
		return nil
	}

	q := `UPDATE operators SET
		password_hash = COALESCE($2::text, password_hash),
		identity_id = COALESCE(identity_id, $3::text),
		reset_token_hash = CASE WHEN $4::boolean THEN $5::text ELSE reset_token_hash END,
		reset_token_expires_at = CASE WHEN $4::boolean THEN $6::timestamptz ELSE reset_token_expires_at END,
		updated_at = now()
	WHERE id = $1`

	var (
		setToken  bool
		tokenHash *string
		expiresAt *time.Time
	)
	if rt := update.ResetToken; rt != nil {
		setToken = true
		tokenHash = &rt.Hash
		expiresAt = &rt.ExpiresAt
	}

	tag, err := a.pool.Exec(ctx, q, id, update.PasswordHash, update.IdentityID, setToken, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return opgate.ErrOperatorNotFound
	}
	return nil
}

// ConsumeResetToken is a single conditional UPDATE; the row lock it takes
// serializes concurrent consumers of the same token.
func (a *Adapter) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	q := `UPDATE operators SET
		password_hash = $3,
		reset_token_hash = NULL,
		reset_token_expires_at = NULL,
		updated_at = $4
	WHERE id = $1 AND reset_token_hash = $2 AND reset_token_expires_at >= $4`

	tag, err := a.pool.Exec(ctx, q, id, tokenHash, passwordHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return opgate.ErrResetTokenConsumed
	}
	return nil
}

func (a *Adapter) queryOperator(ctx context.Context, q string, args ...any) (*opgate.Operator, error) {
	op := &opgate.Operator{}
	err := a.pool.QueryRow(ctx, q, args...).Scan(
		&op.ID,
		&op.Email,
		&op.PasswordHash,
		&op.IdentityID,
		&op.StoreID,
		&op.ResetTokenHash,
		&op.ResetTokenExpiresAt,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, opgate.ErrOperatorNotFound
		}
		return nil, err
	}
	return op, nil
}
