package model

import (
	"strings"
	"time"
)

// UserType is the account kind. The same email may be registered once per
// kind, so every lookup by email is scoped to a UserType.
type UserType string

const (
	UserTypeClient  UserType = "client"
	UserTypeCompany UserType = "company"
)

// ParseUserType normalizes s and reports whether it names a known kind.
func ParseUserType(s string) (UserType, bool) {
	t := UserType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Valid reports whether t is one of the fixed account kinds.
func (t UserType) Valid() bool {
	return t == UserTypeClient || t == UserTypeCompany
}

// Account represents a row of the `users` table.
//
// Fields:
//  ID                     – primary key identifier of the account.
//  Name                   – display name.
//  Email                  – lower-cased email, unique together with UserType.
//  PasswordHash           – bcrypt hash. Only populated by the lookups that
//                           explicitly ask for it; never serialized.
//  UserType               – account kind (client or company).
//  Phone, AvatarURL       – optional profile fields.
//  EmailVerified          – verification state.
//  EmailVerificationToken – pending verification code, never serialized.
//  Blocked                – administratively blocked accounts cannot log in.
//  CreatedAt, UpdatedAt   – timestamps.
type Account struct {
	ID                     uint64    `json:"id"`
	Name                   string    `json:"name"`
	Email                  string    `json:"email"`
	PasswordHash           string    `json:"-"`
	UserType               UserType  `json:"user_type"`
	Phone                  *string   `json:"phone,omitempty"`
	AvatarURL              *string   `json:"avatar_url,omitempty"`
	EmailVerified          bool      `json:"email_verified"`
	EmailVerificationToken *string   `json:"-"`
	Blocked                bool      `json:"blocked"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Public returns the minimal projection handed out with issued tokens.
func (a Account) Public() PublicAccount {
	return PublicAccount{ID: a.ID, Name: a.Name, Email: a.Email}
}

// PublicAccount is the minimal account projection returned by login.
type PublicAccount struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewAccount carries the fields required to register an account. PasswordHash
// is already hashed by the caller.
type NewAccount struct {
	Name         string
	Email        string
	PasswordHash string
	UserType     UserType
	Phone        *string
}

// AccountUpdate is a partial update; nil fields are left untouched.
type AccountUpdate struct {
	Name      *string
	Email     *string
	Phone     *string
	AvatarURL *string
	UserType  *UserType
}

// Apply copies the non-nil fields of u onto a.
func (u AccountUpdate) Apply(a *Account) {
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.Phone != nil {
		a.Phone = u.Phone
	}
	if u.AvatarURL != nil {
		a.AvatarURL = u.AvatarURL
	}
	if u.UserType != nil {
		a.UserType = *u.UserType
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
