package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/handler"
	"github.com/iliyamo/account-service/internal/middleware"
)

// RegisterUsers registers account management under /user. Registration is
// public; every other route requires a valid access token. Reads go through
// cache and every mutation runs invalidate. /user/me is never cached since
// its body depends on the caller.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, jwtSecret string, cache, invalidate echo.MiddlewareFunc) {
	auth := middleware.Authenticated(jwtSecret)

	g := e.Group("/user")
	g.POST("", u.Create, invalidate)
	g.GET("", u.List, auth, cache)
	g.GET("/me", u.Me, auth)
	g.GET("/:id", u.Get, auth, cache)
	g.PUT("/:id", u.Update, auth, invalidate)
	g.DELETE("/:id", u.Delete, auth, invalidate)
}
