package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"blogapi/internal/services"
)

type UserHandler struct {
	auth   services.AuthService
	logger *slog.Logger
}

func NewUserHandler(auth services.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{auth: auth, logger: logger}
}

// Me returns the authenticated user as a bare record, without the envelope.
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.auth.CurrentUser(c.Request.Context(), getCaller(c))
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, user)
}
