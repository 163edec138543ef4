package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/utils"
)

// Context keys set by Authenticated.
const (
	userKey   = "user"
	userIDKey = "user_id"
)

// CurrentUser returns the authenticated token user, if any.
func CurrentUser(c echo.Context) (utils.TokenUser, bool) {
	u, ok := c.Get(userKey).(utils.TokenUser)
	return u, ok
}

// currentUserID is the rate-limit identity: the account id, or "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok && s != "" {
		return s
	}
	return "anon"
}
