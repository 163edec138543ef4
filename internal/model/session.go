package model

import "time"

// Session models an entry in the `auths` table: one issued refresh token.
// An account may hold any number of concurrent sessions. Only the SHA-256
// hex digest of the refresh token is stored.
type Session struct {
	ID        uint64    // auths.id
	UserID    uint64    // auths.user_id
	TokenHash string    // auths.refresh_token_hash
	ExpiresAt time.Time // auths.expires_date
	CreatedAt time.Time // auths.created_at
}
