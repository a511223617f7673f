package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"blogapi/internal/logging"
	"blogapi/internal/services"
)

const CallerKey = "caller"

func abortJSON(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{
		"status":  "An error has occurred...",
		"message": message,
		"data":    gin.H{},
	})
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireAuth resolves the bearer token to a *services.Caller stored under
// CallerKey, or aborts with 401.
func RequireAuth(tokens services.TokenService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "User not authenticated")
			return
		}

		caller, err := tokens.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, services.ErrUnauthenticated) {
				logging.LogError(logger, "token authentication failed", err, "request_id", c.GetString(RequestIDKey))
				abortJSON(c, http.StatusInternalServerError, "Internal server error")
				return
			}
			abortJSON(c, http.StatusUnauthorized, "User not authenticated")
			return
		}

		c.Set(CallerKey, caller)
		c.Next()
	}
}
