package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/account-service/internal/apperror"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/utils"
)

// UserService implements account management.
type UserService struct {
	Users      UserStore
	BcryptCost int
	Events     EventPublisher
	Log        *slog.Logger
	Now        func() time.Time
}

func NewUserService(users UserStore, bcryptCost int, events EventPublisher, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{Users: users, BcryptCost: bcryptCost, Events: events, Log: log, Now: time.Now}
}

type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	UserType string
	Phone    *string
}

// Create registers an account. (email, user_type) must be unused.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (model.Account, error) {
	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" || strings.TrimSpace(in.UserType) == "" {
		return model.Account{}, apperror.BadRequest("name, email, password and user_type are required")
	}
	if len(in.Password) > maxPasswordBytes {
		return model.Account{}, apperror.BadRequest(msgPasswordTooLong)
	}
	ut, ok := model.ParseUserType(in.UserType)
	if !ok {
		return model.Account{}, apperror.BadRequest(msgInvalidUserType)
	}

	_, err := s.Users.GetByEmailAndType(ctx, email, ut)
	switch {
	case err == nil:
		return model.Account{}, existsConflict(email, ut)
	case !errors.Is(err, repository.ErrNotFound):
		return model.Account{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := utils.HashPassword(in.Password, s.BcryptCost)
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}
	a, err := s.Users.Create(ctx, model.NewAccount{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		UserType:     ut,
		Phone:        in.Phone,
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return model.Account{}, existsConflict(email, ut)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}

	if s.Events != nil {
		ev := queue.Event{
			Type:       queue.EventUserRegistered,
			UserID:     a.ID,
			Email:      a.Email,
			Name:       a.Name,
			UserType:   string(a.UserType),
			OccurredAt: s.Now().UTC().Format(time.RFC3339),
		}
		if err := s.Events.Publish(ctx, ev); err != nil {
			s.Log.WarnContext(ctx, "publish event failed", "event", ev.Type, "user_id", a.ID, "err", err)
		}
	}
	return a, nil
}

func (s *UserService) List(ctx context.Context) ([]model.Account, error) {
	users, err := s.Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, id uint64) (model.Account, error) {
	a, err := s.Users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, apperror.NotFound(msgUserNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	return a, nil
}

// UpdateUserInput is a partial update; nil fields are left untouched.
type UpdateUserInput struct {
	Name      *string
	Email     *string
	Phone     *string
	AvatarURL *string
	UserType  *string
}

// Update applies a partial update. Moving an account onto an (email,
// user_type) pair held by another account is a conflict.
func (s *UserService) Update(ctx context.Context, id uint64, in UpdateUserInput) (model.Account, error) {
	var upd model.AccountUpdate
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return model.Account{}, apperror.BadRequest("name must not be empty")
		}
		upd.Name = &name
	}
	if in.Email != nil {
		email := model.NormalizeEmail(*in.Email)
		if email == "" {
			return model.Account{}, apperror.BadRequest("email must not be empty")
		}
		upd.Email = &email
	}
	if in.UserType != nil {
		ut, ok := model.ParseUserType(*in.UserType)
		if !ok {
			return model.Account{}, apperror.BadRequest(msgInvalidUserType)
		}
		upd.UserType = &ut
	}
	upd.Phone = in.Phone
	upd.AvatarURL = in.AvatarURL

	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	target := current
	upd.Apply(&target)
	if target.Email != current.Email || target.UserType != current.UserType {
		other, err := s.Users.GetByEmailAndType(ctx, target.Email, target.UserType)
		switch {
		case err == nil && other.ID != id:
			return model.Account{}, inUseConflict(target.Email, target.UserType)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return model.Account{}, fmt.Errorf("check email: %w", err)
		}
	}

	a, err := s.Users.Update(ctx, id, upd)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return model.Account{}, inUseConflict(target.Email, target.UserType)
	case errors.Is(err, repository.ErrNotFound):
		return model.Account{}, apperror.NotFound(msgUserNotFound)
	case err != nil:
		return model.Account{}, fmt.Errorf("update account: %w", err)
	}
	return a, nil
}

func (s *UserService) Delete(ctx context.Context, id uint64) error {
	err := s.Users.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound(msgUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func existsConflict(email string, t model.UserType) error {
	return apperror.Conflict(fmt.Sprintf("User with email %s and type %s already exists", email, t))
}

func inUseConflict(email string, t model.UserType) error {
	return apperror.Conflict(fmt.Sprintf("Email %s already in use for user type %s", email, t))
}
