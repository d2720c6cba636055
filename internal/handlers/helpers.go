package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/logger"
)

// defaultWindow is used when a windowed query omits both bounds.
const defaultWindow = 24 * time.Hour

// ErrorDetail represents the error details in an error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// getUserID extracts the authenticated user ID from the Gin context.
// Returns ErrUnauthorized if not present.
func getUserID(c *gin.Context) (string, error) {
	userID := c.GetString("userID")
	if userID == "" {
		return "", apperrors.ErrUnauthorized
	}
	return userID, nil
}

// parseFlexibleTime accepts RFC 3339 timestamps (with or without fractional
// seconds) and plain dates, which are read as midnight UTC.
func parseFlexibleTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseWindow reads the from/to query parameters. Missing bounds default to
// the trailing window ending now.
func parseWindow(c *gin.Context, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if v := c.Query("to"); v != "" {
		parsed, err := parseFlexibleTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "to must be an ISO-8601 timestamp or date")
		}
		to = parsed
	}

	from := to.Add(-defaultWindow)
	if v := c.Query("from"); v != "" {
		parsed, err := parseFlexibleTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "from must be an ISO-8601 timestamp or date")
		}
		from = parsed
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, apperrors.ErrInvalidTimeWindow
	}
	return from, to, nil
}

// respondWithError writes a consistent JSON error response. If the error is an
// *AppError it uses the error's status code, code, and message. Otherwise it
// logs the unexpected error and returns a generic internal server error.
func respondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", c.Request.URL.Path,
			)
		}
		c.JSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	logger.Get().Errorw("unexpected error",
		"error", err.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	c.JSON(apperrors.ErrInternalServer.StatusCode, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrInternalServer.Code,
			"message": apperrors.ErrInternalServer.Message,
		},
	})
}
