package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256" // SHA‑256 hashing for refresh tokens
	"encoding/hex"  // hex encoding of digests
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"
)

// TokenUser is the account summary embedded in every issued token under the
// "user" claim.
type TokenUser struct {
	ID       uint64 `json:"id"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

// Claims is the full claim set of access and refresh tokens.
type Claims struct {
	User TokenUser `json:"user"`
	jwt.RegisteredClaims
}

// SignedToken is a serialized JWT along with its expiry.
type SignedToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user. The token carries
// the user claim plus sub, iat and exp.
func NewAccessToken(secret string, u TokenUser, ttl time.Duration, now time.Time) (SignedToken, error) {
	return sign(secret, u, now.UTC(), now.UTC().Add(ttl), "")
}

// NewRefreshToken is like NewAccessToken but expires at exp and carries a
// random jti, so two refresh tokens issued in the same second still differ.
func NewRefreshToken(secret string, u TokenUser, now, exp time.Time) (SignedToken, error) {
	return sign(secret, u, now.UTC(), exp.UTC(), uuid.NewString())
}

func sign(secret string, u TokenUser, iat, exp time.Time, jti string) (SignedToken, error) {
	if secret == "" {
		return SignedToken{}, errors.New("jwt: empty signing secret")
	}
	claims := Claims{
		User: u,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// ParseToken verifies raw against secret and returns its claims. Expired
// tokens fail with an error matching jwt.ErrTokenExpired.
func ParseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string. Only this digest is persisted.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
