package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/account-service/internal/model"
)

// TokenRepo persists refresh-token sessions in the 'auths' table. Only the
// token digest is stored.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts a session row.
func (r *TokenRepo) Create(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO auths (refresh_token_hash, user_id, expires_date, created_at, updated_at) VALUES (?,?,?,?,?)",
		tokenHash, userID, exp.UTC(), now, now)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByTokenHash returns the session for a refresh-token digest.
func (r *TokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, refresh_token_hash, expires_date, created_at FROM auths WHERE refresh_token_hash=? LIMIT 1",
		tokenHash).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("select session: %w", err)
	}
	return s, nil
}

// DeleteByTokenHash revokes one session.
func (r *TokenRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM auths WHERE refresh_token_hash=?", tokenHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllForUser revokes every session of an account.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM auths WHERE user_id=?", userID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}
