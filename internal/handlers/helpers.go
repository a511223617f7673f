package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"blogapi/internal/logging"
	"blogapi/internal/middleware"
	"blogapi/internal/services"
)

const (
	statusSuccess = "Request was successful."
	statusError   = "An error has occurred..."

	msgInvalidData = "The given data was invalid."
	msgInternal    = "Internal server error"
)

func success(c *gin.Context, code int, message string, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(code, gin.H{"status": statusSuccess, "message": message, "data": data})
}

func failure(c *gin.Context, code int, message string, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.AbortWithStatusJSON(code, gin.H{"status": statusError, "message": message, "data": data})
}

// errInternal keys the message for unexpected failures in messages.
var errInternal = errors.New("internal")

// messages overrides the default response text per error kind.
type messages map[error]string

func (m messages) pick(kind error, fallback string) string {
	if msg, ok := m[kind]; ok {
		return msg
	}
	return fallback
}

// respondError maps a service error to its HTTP status and writes the
// error envelope. Unexpected errors are logged and answered with a
// generic 500.
func respondError(c *gin.Context, logger *slog.Logger, err error, msgs messages) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		failure(c, http.StatusUnprocessableEntity, verr.Message,
			gin.H{"errors": gin.H{verr.Field: []string{verr.Message}}})
	case errors.Is(err, services.ErrValidation):
		failure(c, http.StatusUnprocessableEntity, msgs.pick(services.ErrValidation, msgInvalidData), nil)
	case errors.Is(err, services.ErrDuplicateEmail):
		failure(c, http.StatusConflict, msgs.pick(services.ErrDuplicateEmail, "The email has already been taken."),
			gin.H{"errors": gin.H{"email": []string{"The email has already been taken."}}})
	case errors.Is(err, services.ErrInvalidCredentials):
		failure(c, http.StatusUnauthorized, msgs.pick(services.ErrInvalidCredentials, "Invalid credentials"), nil)
	case errors.Is(err, services.ErrUnauthenticated):
		failure(c, http.StatusUnauthorized, msgs.pick(services.ErrUnauthenticated, "User not authenticated"), nil)
	case errors.Is(err, services.ErrUserNotFound):
		failure(c, http.StatusNotFound, msgs.pick(services.ErrUserNotFound, "User not found"), nil)
	case errors.Is(err, services.ErrInvalidCode):
		failure(c, http.StatusBadRequest, msgs.pick(services.ErrInvalidCode, "Invalid reset code or email"), nil)
	case errors.Is(err, services.ErrNotFound):
		failure(c, http.StatusNotFound, msgs.pick(services.ErrNotFound, "Resource not found"), nil)
	case errors.Is(err, services.ErrForbidden):
		failure(c, http.StatusForbidden, msgs.pick(services.ErrForbidden, "You are not authorized to make this request"), nil)
	case errors.Is(err, services.ErrNotificationFailed):
		logging.LogError(logger, "notification failed", err, requestAttrs(c)...)
		failure(c, http.StatusInternalServerError, msgs.pick(services.ErrNotificationFailed, "Failed to send email."), nil)
	default:
		logging.LogError(logger, "request failed", err, requestAttrs(c)...)
		failure(c, http.StatusInternalServerError, msgs.pick(errInternal, msgInternal), nil)
	}
}

func requestAttrs(c *gin.Context) []any {
	return []any{
		"request_id", c.GetString(middleware.RequestIDKey),
		"method", c.Request.Method,
		"route", c.FullPath(),
	}
}

// bindJSON decodes the body into req and answers 422 with per-field
// messages when binding fails.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := gin.H{}
			first := ""
			for _, fe := range verrs {
				field := strings.ToLower(fe.Field())
				msg := fieldMessage(field, fe)
				if first == "" {
					first = msg
				}
				if existing, ok := fields[field].([]string); ok {
					fields[field] = append(existing, msg)
				} else {
					fields[field] = []string{msg}
				}
			}
			failure(c, http.StatusUnprocessableEntity, first, gin.H{"errors": fields})
			return false
		}
		failure(c, http.StatusUnprocessableEntity, msgInvalidData, gin.H{"errors": gin.H{"body": []string{"The request body must be valid JSON."}}})
		return false
	}
	return true
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", field, fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}

func getCaller(c *gin.Context) *services.Caller {
	v, ok := c.Get(middleware.CallerKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*services.Caller)
	return caller
}

func getIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
