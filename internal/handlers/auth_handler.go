package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"blogapi/internal/models"
	"blogapi/internal/services"
)

type AuthHandler struct {
	auth   services.AuthService
	resets services.PasswordResetService
	logger *slog.Logger
}

func NewAuthHandler(auth services.AuthService, resets services.PasswordResetService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, resets: resets, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err, messages{
			services.ErrNotificationFailed: "Failed to send welcome email.",
		})
		return
	}
	success(c, http.StatusCreated, "User registered successfully", models.AuthResponse{User: user, Token: token})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	success(c, http.StatusOK, "User logged in successfully", models.AuthResponse{User: user, Token: token})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	user, err := h.auth.Logout(c.Request.Context(), getCaller(c))
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	success(c, http.StatusOK, user.Name+", you have successfully logged out and your token has been deleted.", nil)
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.resets.RequestReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err, messages{
			services.ErrNotificationFailed: "Failed to send password reset email.",
		})
		return
	}
	success(c, http.StatusOK, "Password reset code sent to your email.", nil)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.resets.ResetPassword(c.Request.Context(), req.Email, req.Code, req.Password); err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	success(c, http.StatusOK, "Password reset successfully", nil)
}
