package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/account-service/internal/apperror"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/utils"
)

// ResetCodeTTL is how long a reset code stays valid.
const ResetCodeTTL = time.Hour

// maxCodeAttempts bounds regeneration when a fresh code collides with a live one.
const maxCodeAttempts = 5

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// TokenConfig carries the signing secrets and lifetimes of issued tokens.
type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

// AuthService implements login, logout and password recovery.
type AuthService struct {
	Users      UserStore
	Sessions   SessionStore
	Resets     ResetStore
	Tokens     TokenConfig
	BcryptCost int
	Events     EventPublisher
	Log        *slog.Logger

	Now     func() time.Time
	NewCode func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserStore, sessions SessionStore, resets ResetStore, tokens TokenConfig, bcryptCost int, events EventPublisher, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		Users:      users,
		Sessions:   sessions,
		Resets:     resets,
		Tokens:     tokens,
		BcryptCost: bcryptCost,
		Events:     events,
		Log:        log,
		Now:        time.Now,
		NewCode:    utils.NewResetCode,
	}
}

type LoginInput struct {
	Email    string
	Password string
	UserType string
}

type LoginResult struct {
	Token        string
	RefreshToken string
	User         model.PublicAccount
}

// Login verifies credentials scoped to (email, user_type), issues an access
// and a refresh token and records the refresh token as a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" || strings.TrimSpace(in.UserType) == "" {
		return LoginResult{}, apperror.BadRequest("email, password and user_type are required")
	}
	ut, ok := model.ParseUserType(in.UserType)
	if !ok {
		s.burnCompare(in.Password)
		return LoginResult{}, apperror.Unauthorized(msgInvalidCredentials)
	}

	a, err := s.Users.GetByEmailWithPassword(ctx, in.Email, ut)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnCompare(in.Password)
			return LoginResult{}, apperror.Unauthorized(msgInvalidCredentials)
		}
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}
	if a.PasswordHash == "" || !utils.VerifyPassword(a.PasswordHash, in.Password) {
		return LoginResult{}, apperror.Unauthorized(msgInvalidCredentials)
	}
	if a.Blocked {
		return LoginResult{}, apperror.Unauthorized(msgUserBlocked)
	}

	now := s.Now().UTC()
	tu := utils.TokenUser{ID: a.ID, Email: a.Email, UserType: string(a.UserType)}
	access, err := utils.NewAccessToken(s.Tokens.AccessSecret, tu, s.Tokens.AccessTTL, now)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	exp := now.Add(s.Tokens.RefreshTTL)
	refresh, err := utils.NewRefreshToken(s.Tokens.RefreshSecret, tu, now, exp)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.Sessions.Create(ctx, a.ID, utils.HashRefreshRaw(refresh.Token), exp); err != nil {
		return LoginResult{}, fmt.Errorf("save session: %w", err)
	}

	return LoginResult{Token: access.Token, RefreshToken: refresh.Token, User: a.Public()}, nil
}

// burnCompare spends one bcrypt comparison so unknown accounts take as long
// to reject as wrong passwords.
func (s *AuthService) burnCompare(plain string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = utils.HashPassword("dummy-password", s.BcryptCost)
	})
	_ = utils.VerifyPassword(s.dummyHash, plain)
}

// Logout revokes the session of one refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return apperror.BadRequest("refresh_token is required")
	}
	hash := utils.HashRefreshRaw(refreshToken)
	if _, err := s.Sessions.GetByTokenHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Unauthorized(msgInvalidRefresh)
		}
		return fmt.Errorf("load session: %w", err)
	}
	err := s.Sessions.DeleteByTokenHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.Unauthorized(msgInvalidRefresh)
	}
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

type ForgotPasswordInput struct {
	Email    string
	UserType string
}

type ForgotPasswordResult struct {
	Token     string
	ExpiresAt time.Time
	Message   string
}

// ForgotPassword issues a one-time 6-digit code for the account, valid for
// ResetCodeTTL. The code is returned to the caller and also published as a
// password_reset.requested event for delivery.
func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) (ForgotPasswordResult, error) {
	if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.UserType) == "" {
		return ForgotPasswordResult{}, apperror.BadRequest("email and user_type are required")
	}
	ut, ok := model.ParseUserType(in.UserType)
	if !ok {
		return ForgotPasswordResult{}, apperror.NotFound(msgUserNotFound)
	}
	a, err := s.Users.GetByEmailAndType(ctx, in.Email, ut)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ForgotPasswordResult{}, apperror.NotFound(msgUserNotFound)
		}
		return ForgotPasswordResult{}, fmt.Errorf("load account: %w", err)
	}

	now := s.Now().UTC()
	exp := now.Add(ResetCodeTTL)
	var pr model.PasswordReset
	for attempt := 1; ; attempt++ {
		code, err := s.NewCode()
		if err != nil {
			return ForgotPasswordResult{}, fmt.Errorf("generate code: %w", err)
		}
		pr, err = s.Resets.Create(ctx, a.ID, code, exp, now)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateCode) || attempt == maxCodeAttempts {
			return ForgotPasswordResult{}, fmt.Errorf("save reset code: %w", err)
		}
	}

	s.publish(ctx, queue.Event{
		Type:       queue.EventPasswordResetRequested,
		UserID:     a.ID,
		Email:      a.Email,
		Name:       a.Name,
		UserType:   string(a.UserType),
		Token:      pr.Token,
		ExpiresAt:  pr.ExpiresAt.Format(time.RFC3339),
		OccurredAt: now.Format(time.RFC3339),
	})

	return ForgotPasswordResult{Token: pr.Token, ExpiresAt: pr.ExpiresAt, Message: MsgResetIssued}, nil
}

type ResetPasswordInput struct {
	Token       string
	NewPassword string
}

// ResetPassword consumes a reset code and overwrites the owner's password.
// Failures are checked in order: unknown code, already used, expired, owner
// gone. The store claims the code atomically, so a concurrent second attempt
// on the same code fails as already used. Every session of the account is
// revoked afterwards.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	token := strings.TrimSpace(in.Token)
	if token == "" || in.NewPassword == "" {
		return apperror.BadRequest("token and new_password are required")
	}
	if len(in.NewPassword) > maxPasswordBytes {
		return apperror.BadRequest(msgPasswordTooLong)
	}

	pr, err := s.Resets.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.BadRequest(msgInvalidToken)
		}
		return fmt.Errorf("load reset code: %w", err)
	}
	now := s.Now().UTC()
	if pr.Used() {
		return apperror.BadRequest(msgTokenUsed)
	}
	if pr.Expired(now) {
		return apperror.BadRequest(msgTokenExpired)
	}

	if _, err := s.Users.GetByID(ctx, pr.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound(msgUserNotFound)
		}
		return fmt.Errorf("load account: %w", err)
	}

	hash, err := utils.HashPassword(in.NewPassword, s.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	switch err := s.Resets.Consume(ctx, pr.ID, pr.UserID, hash, now); {
	case err == nil:
	case errors.Is(err, repository.ErrTokenUsed):
		return apperror.BadRequest(msgTokenUsed)
	case errors.Is(err, repository.ErrTokenExpired):
		return apperror.BadRequest(msgTokenExpired)
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(msgUserNotFound)
	default:
		return fmt.Errorf("consume reset code: %w", err)
	}

	if err := s.Sessions.DeleteAllForUser(ctx, pr.UserID); err != nil {
		s.Log.WarnContext(ctx, "revoke sessions after password reset failed", "user_id", pr.UserID, "err", err)
	}
	return nil
}

func (s *AuthService) publish(ctx context.Context, ev queue.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.Log.WarnContext(ctx, "publish event failed", "event", ev.Type, "user_id", ev.UserID, "err", err)
	}
}
