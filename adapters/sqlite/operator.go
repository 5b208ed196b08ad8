package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lborres/opgate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const operatorColumns = `id, email, password_hash, identity_id, store_id, reset_token_hash, reset_token_expires_at, created_at, updated_at`

func (a *Adapter) CreateOperator(ctx context.Context, op *opgate.Operator) error {
	q := `INSERT INTO operators (id, email, store_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	id := uuid.NewString()
	email := opgate.NormalizeEmail(op.Email)
	now := time.Now().UTC()

	if _, err := a.db.ExecContext(ctx, q, id, email, op.StoreID, now.UnixNano(), now.UnixNano()); err != nil {
		if isUniqueViolation(err) {
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
	op.CreatedAt = now
	op.UpdatedAt = now
	return nil
}

func (a *Adapter) GetOperatorByEmail(ctx context.Context, email string) (*opgate.Operator, error) {
	q := `SELECT ` + operatorColumns + ` FROM operators WHERE lower(email) = ?`
	return a.queryOperator(ctx, q, opgate.NormalizeEmail(email))
}

func (a *Adapter) GetRegisteredOperatorByEmail(ctx context.Context, email string) (*opgate.Operator, error) {
	q := `SELECT ` + operatorColumns + ` FROM operators WHERE lower(email) = ? AND password_hash IS NOT NULL`
	return a.queryOperator(ctx, q, opgate.NormalizeEmail(email))
}

func (a *Adapter) GetOperatorByResetToken(ctx context.Context, email, tokenHash string) (*opgate.Operator, error) {
	q := `SELECT ` + operatorColumns + ` FROM operators WHERE lower(email) = ? AND reset_token_hash = ?`
	return a.queryOperator(ctx, q, opgate.NormalizeEmail(email), tokenHash)
}

// UpdateOperator writes the non-nil fields of update. identity_id is only
// filled when empty.
func (a *Adapter) UpdateOperator(ctx context.Context, id string, update opgate.OperatorUpdate) error {
	if update.Empty() {
		return nil
	}

	q := `UPDATE operators SET
		password_hash = COALESCE(?, password_hash),
		identity_id = COALESCE(identity_id, ?),
		reset_token_hash = CASE WHEN ? THEN ? ELSE reset_token_hash END,
		reset_token_expires_at = CASE WHEN ? THEN ? ELSE reset_token_expires_at END,
		updated_at = ?
	WHERE id = ?`

	var (
		setToken  bool
		tokenHash sql.NullString
		expiresAt sql.NullInt64
	)
	if rt := update.ResetToken; rt != nil {
		setToken = true
		tokenHash = sql.NullString{String: rt.Hash, Valid: true}
		expiresAt = sql.NullInt64{Int64: rt.ExpiresAt.UnixNano(), Valid: true}
	}

	res, err := a.db.ExecContext(ctx, q,
		update.PasswordHash,
		update.IdentityID,
		setToken, tokenHash,
		setToken, expiresAt,
		time.Now().UnixNano(),
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, opgate.ErrOperatorNotFound)
}

// ConsumeResetToken relies on SQLite's single writer: the conditional
// UPDATE can only match for one of several concurrent callers.
func (a *Adapter) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	q := `UPDATE operators SET
		password_hash = ?,
		reset_token_hash = NULL,
		reset_token_expires_at = NULL,
		updated_at = ?
	WHERE id = ? AND reset_token_hash = ? AND reset_token_expires_at >= ?`

	res, err := a.db.ExecContext(ctx, q, passwordHash, now.UnixNano(), id, tokenHash, now.UnixNano())
	if err != nil {
		return err
	}
	return requireRow(res, opgate.ErrResetTokenConsumed)
}

func (a *Adapter) queryOperator(ctx context.Context, q string, args ...any) (*opgate.Operator, error) {
	var (
		op        opgate.Operator
		expiresAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := a.db.QueryRowContext(ctx, q, args...).Scan(
		&op.ID,
		&op.Email,
		&op.PasswordHash,
		&op.IdentityID,
		&op.StoreID,
		&op.ResetTokenHash,
		&expiresAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, opgate.ErrOperatorNotFound
		}
		return nil, err
	}

	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64).UTC()
		op.ResetTokenExpiresAt = &t
	}
	op.CreatedAt = time.Unix(0, createdAt).UTC()
	op.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &op, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
