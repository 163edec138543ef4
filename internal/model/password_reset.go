package model

import "time"

// PasswordReset models an entry in the `password_resets` table. A code goes
// from issued to used exactly once; expiry is derived from ExpiresAt at
// consumption time and never stored as a state.
type PasswordReset struct {
	ID        uint64     // password_resets.id
	UserID    uint64     // password_resets.user_id
	Token     string     // password_resets.token, 6 digits
	ExpiresAt time.Time  // password_resets.expires_at
	UsedAt    *time.Time // password_resets.used_at (nullable)
	CreatedAt time.Time  // password_resets.created_at
}

// Used reports whether the code was already consumed.
func (p PasswordReset) Used() bool { return p.UsedAt != nil }

// Expired reports whether the code is past its expiry at now.
func (p PasswordReset) Expired(now time.Time) bool { return now.After(p.ExpiresAt) }
