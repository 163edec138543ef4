package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/account-service/internal/model"
)

const userColumns = "id,name,email,user_type,phone,avatar_url,email_verified,blocked,created_at,updated_at"

// UserRepo persists accounts in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts an account and returns it with its new ID.
func (r *UserRepo) Create(ctx context.Context, in model.NewAccount) (model.Account, error) {
	now := time.Now().UTC()
	email := model.NormalizeEmail(in.Email)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name,email,password,user_type,phone,created_at,updated_at) VALUES (?,?,?,?,?,?,?)",
		in.Name, email, in.PasswordHash, string(in.UserType), nullString(in.Phone), now, now)
	if err != nil {
		if isDuplicateKey(err) {
			return model.Account{}, ErrEmailExists
		}
		return model.Account{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Account{}, fmt.Errorf("insert user: %w", err)
	}
	return model.Account{
		ID:        uint64(id),
		Name:      in.Name,
		Email:     email,
		UserType:  in.UserType,
		Phone:     in.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetByEmailAndType fetches an account scoped to its kind, without the hash.
func (r *UserRepo) GetByEmailAndType(ctx context.Context, email string, t model.UserType) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND user_type=? LIMIT 1",
		model.NormalizeEmail(email), string(t))
	return scanAccount(row)
}

// GetByEmailWithPassword is GetByEmailAndType plus the stored password hash.
func (r *UserRepo) GetByEmailWithPassword(ctx context.Context, email string, t model.UserType) (model.Account, error) {
	var (
		a     model.Account
		ut    string
		phone sql.NullString
		avtr  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+",password FROM users WHERE email=? AND user_type=? LIMIT 1",
		model.NormalizeEmail(email), string(t)).
		Scan(&a.ID, &a.Name, &a.Email, &ut, &phone, &avtr, &a.EmailVerified, &a.Blocked, &a.CreatedAt, &a.UpdatedAt, &a.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("select user: %w", err)
	}
	a.UserType = model.UserType(ut)
	a.Phone = stringPtr(phone)
	a.AvatarURL = stringPtr(avtr)
	return a, nil
}

// GetByID fetches an account by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanAccount(row)
}

// List returns every account ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.Account, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []model.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// Update applies a partial update. The unique (email, user_type) index backs
// the conflict check made by the caller.
func (r *UserRepo) Update(ctx context.Context, id uint64, u model.AccountUpdate) (model.Account, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	u.Apply(&a)
	a.Email = model.NormalizeEmail(a.Email)
	a.UpdatedAt = time.Now().UTC()

	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, email=?, phone=?, avatar_url=?, user_type=?, updated_at=? WHERE id=?",
		a.Name, a.Email, nullString(a.Phone), nullString(a.AvatarURL), string(a.UserType), a.UpdatedAt, id)
	if err != nil {
		if isDuplicateKey(err) {
			return model.Account{}, ErrEmailExists
		}
		return model.Account{}, fmt.Errorf("update user: %w", err)
	}
	// Matched rows, not changed rows: the DSN sets clientFoundRows. Zero means
	// the account was deleted after the read above.
	n, err := res.RowsAffected()
	if err != nil {
		return model.Account{}, fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

// Delete removes an account. Sessions and reset codes go with it (ON DELETE CASCADE).
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (model.Account, error) {
	var (
		a     model.Account
		ut    string
		phone sql.NullString
		avtr  sql.NullString
	)
	err := s.Scan(&a.ID, &a.Name, &a.Email, &ut, &phone, &avtr, &a.EmailVerified, &a.Blocked, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("scan user: %w", err)
	}
	a.UserType = model.UserType(ut)
	a.Phone = stringPtr(phone)
	a.AvatarURL = stringPtr(avtr)
	return a, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
