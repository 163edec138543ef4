// Package service implements the account flows: token issuance, password
// recovery and account management. Flows depend only on the store
// interfaces below, so the MySQL and in-memory stores are interchangeable.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
)

// UserStore is the credential store.
type UserStore interface {
	Create(ctx context.Context, in model.NewAccount) (model.Account, error)
	GetByEmailAndType(ctx context.Context, email string, t model.UserType) (model.Account, error)
	GetByEmailWithPassword(ctx context.Context, email string, t model.UserType) (model.Account, error)
	GetByID(ctx context.Context, id uint64) (model.Account, error)
	List(ctx context.Context) ([]model.Account, error)
	Update(ctx context.Context, id uint64, u model.AccountUpdate) (model.Account, error)
	Delete(ctx context.Context, id uint64) error
}

// SessionStore is the refresh-token session store.
type SessionStore interface {
	Create(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	GetByTokenHash(ctx context.Context, tokenHash string) (model.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID uint64) error
}

// ResetStore is the reset-code store. Consume must claim the code and set the
// password atomically.
type ResetStore interface {
	Create(ctx context.Context, userID uint64, token string, exp, now time.Time) (model.PasswordReset, error)
	GetByToken(ctx context.Context, token string) (model.PasswordReset, error)
	Consume(ctx context.Context, resetID, userID uint64, passwordHash string, now time.Time) error
}

// EventPublisher delivers account events. A nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Client-facing messages.
const (
	msgInvalidCredentials = "Email, password or user type incorrect"
	msgUserBlocked        = "User is blocked"
	msgUserNotFound       = "User not found"
	msgInvalidToken       = "Invalid token"
	msgTokenUsed          = "Token already used"
	msgTokenExpired       = "Token expired"
	msgInvalidRefresh     = "Invalid refresh token"
	msgInvalidUserType    = "user_type must be one of: client, company"
	msgPasswordTooLong    = "password must be at most 72 bytes"

	MsgResetIssued = "Password reset token generated successfully"
	MsgResetDone   = "Password reset successfully"
)
