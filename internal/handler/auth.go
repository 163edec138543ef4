package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperror"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

// AuthHandler exposes the token and recovery flows under /auth.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(a *service.AuthService) *AuthHandler {
	if a == nil {
		panic("nil auth service passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type"`
}

type loginResp struct {
	Token        string              `json:"token"`
	RefreshToken string              `json:"refresh_token"`
	User         model.PublicAccount `json:"user"`
}

type forgotPasswordReq struct {
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

type forgotPasswordResp struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
}

type messageResp struct {
	Message string `json:"message"`
}

// bind decodes the request body, answering 400 on malformed input.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.BadRequest("invalid body")
	}
	return nil
}

// Login: verify credentials and return an access/refresh pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, service.LoginInput{Email: req.Email, Password: req.Password, UserType: req.UserType})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResp{Token: res.Token, RefreshToken: res.RefreshToken, User: res.User})
}

// ForgotPassword: issue a one-time reset code.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Auth.ForgotPassword(ctx, service.ForgotPasswordInput{Email: req.Email, UserType: req.UserType})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, forgotPasswordResp{Token: res.Token, Message: res.Message})
}

// ResetPassword: consume a reset code and set the new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, service.ResetPasswordInput{Token: req.Token, NewPassword: req.NewPassword}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Message: service.MsgResetDone})
}

// Logout: revoke the session of the given refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.Logout(ctx, req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
