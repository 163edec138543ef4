package middleware // reusable HTTP middleware for the account routes

import (
	"errors"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperror"
	"github.com/iliyamo/account-service/internal/utils"
)

const (
	msgTokenNotProvided = "Token not provided"
	msgTokenExpired     = "Token expired"
	msgInvalidToken     = "Invalid token"
)

// Authenticated returns an Echo middleware that validates a Bearer access
// token signed with secret. On success the token's user claim is stored under
// "user" (utils.TokenUser) and its id under "user_id" (decimal string).
func Authenticated(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if !strings.HasPrefix(auth, "Bearer ") || raw == "" {
				return apperror.Unauthorized(msgTokenNotProvided)
			}

			claims, err := utils.ParseToken(secret, raw)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return apperror.Unauthorized(msgTokenExpired)
				}
				return apperror.Unauthorized(msgInvalidToken)
			}

			c.Set(userKey, claims.User)
			c.Set(userIDKey, strconv.FormatUint(claims.User.ID, 10))
			return next(c)
		}
	}
}
