package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/account-service/internal/database"
	"github.com/iliyamo/account-service/internal/model"
)

// PasswordResetRepo persists one-time reset codes in 'password_resets'.
// The unique index on token keeps live codes distinct.
type PasswordResetRepo struct{ DB *sql.DB }

func NewPasswordResetRepo(db *sql.DB) *PasswordResetRepo { return &PasswordResetRepo{DB: db} }

// Create stores a code for userID. Rows that hold the same code but are
// already used or expired are cleared first so the value can be reissued;
// a clash with a live code yields ErrDuplicateCode.
func (r *PasswordResetRepo) Create(ctx context.Context, userID uint64, token string, exp, now time.Time) (model.PasswordReset, error) {
	pr := model.PasswordReset{UserID: userID, Token: token, ExpiresAt: exp.UTC(), CreatedAt: now.UTC()}
	err := database.WithTx(ctx, r.DB, func(ctx context.Context, tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM password_resets WHERE token=? AND (used_at IS NOT NULL OR expires_at < ?)",
			token, pr.CreatedAt); err != nil {
			return fmt.Errorf("clear stale reset: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO password_resets (user_id, token, expires_at, created_at) VALUES (?,?,?,?)",
			userID, token, pr.ExpiresAt, pr.CreatedAt)
		if err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateCode
			}
			return fmt.Errorf("insert reset: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert reset: %w", err)
		}
		pr.ID = uint64(id)
		return nil
	})
	if err != nil {
		return model.PasswordReset{}, err
	}
	return pr, nil
}

// GetByToken looks a code up by value.
func (r *PasswordResetRepo) GetByToken(ctx context.Context, token string) (model.PasswordReset, error) {
	var (
		pr     model.PasswordReset
		usedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, used_at, created_at FROM password_resets WHERE token=? LIMIT 1",
		token).Scan(&pr.ID, &pr.UserID, &pr.Token, &pr.ExpiresAt, &usedAt, &pr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PasswordReset{}, ErrNotFound
		}
		return model.PasswordReset{}, fmt.Errorf("select reset: %w", err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		pr.UsedAt = &t
	}
	return pr, nil
}

// Consume marks the code used and overwrites the owner's password hash in
// one transaction. The conditional update claims the code at most once, so
// concurrent consumers of the same code cannot both succeed: the loser gets
// ErrTokenUsed (or ErrTokenExpired). ErrNotFound means the account is gone,
// in which case nothing is written.
func (r *PasswordResetRepo) Consume(ctx context.Context, resetID, userID uint64, passwordHash string, now time.Time) error {
	now = now.UTC()
	return database.WithTx(ctx, r.DB, func(ctx context.Context, tx database.DBTX) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE password_resets SET used_at=? WHERE id=? AND used_at IS NULL AND expires_at >= ?",
			now, resetID, now)
		if err != nil {
			return fmt.Errorf("claim reset: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim reset: %w", err)
		}
		if n == 0 {
			return classifyUnclaimed(ctx, tx, resetID)
		}

		res, err = tx.ExecContext(ctx,
			"UPDATE users SET password=?, updated_at=? WHERE id=?",
			passwordHash, now, userID)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// classifyUnclaimed explains why the conditional update matched nothing.
func classifyUnclaimed(ctx context.Context, tx database.DBTX, resetID uint64) error {
	var usedAt sql.NullTime
	err := tx.QueryRowContext(ctx, "SELECT used_at FROM password_resets WHERE id=?", resetID).Scan(&usedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("reload reset: %w", err)
	case usedAt.Valid:
		return ErrTokenUsed
	default:
		return ErrTokenExpired
	}
}
