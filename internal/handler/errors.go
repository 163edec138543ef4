package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperror"
)

const msgInternal = "Internal server error"

// errorBody is the envelope every failed request is answered with.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorHandler replaces echo's default HTTPErrorHandler. Application errors
// and echo errors keep their status and message; anything else is logged and
// answered with a generic 500.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := http.StatusInternalServerError, msgInternal
		var he *echo.HTTPError
		if ae, ok := apperror.As(err); ok {
			status, message = ae.Status, ae.Message
		} else if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(he.Code)
			}
		} else {
			req := c.Request()
			log.ErrorContext(req.Context(), "request failed",
				"method", req.Method,
				"path", req.URL.Path,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"err", err,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, errorBody{Status: "error", Message: message})
		}
		if werr != nil {
			log.Warn("write error response failed", "err", werr)
		}
	}
}
