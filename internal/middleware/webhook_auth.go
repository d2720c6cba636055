package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"crmaudit/internal/auditctx"
	"crmaudit/internal/logger"
	"crmaudit/internal/models"
)

const (
	integrationHeader = "X-Integration-ID"
	integrationRole   = "INTEGRATION"
	integrationPrefix = "integration:"
)

// WebhookAuthMiddleware guards integration endpoints with the shared
// X-API-Key. Accepted calls run as an integration actor named by the
// X-Integration-ID header. A wrong key is recorded as LOGIN_FAILURE when
// recorder is set; a missing key is only rejected.
func WebhookAuthMiddleware(apiKey string, recorder SecurityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": gin.H{"code": "WEBHOOK_NOT_CONFIGURED", "message": "Webhook ingestion is not configured"}})
			return
		}

		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			if key != "" && recorder != nil {
				details := "invalid webhook API key for " + c.Request.URL.Path
				if _, err := recorder.LogSecurityEvent(c.Request.Context(), models.CategoryLoginFailure, details); err != nil {
					logger.Get().Errorw("failed to record webhook auth failure", "error", err)
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"error": gin.H{"code": "INVALID_API_KEY", "message": "Invalid or missing API key"}})
			return
		}

		name := models.Clamp(strings.TrimSpace(c.GetHeader(integrationHeader)), models.IdentifierWidth-len(integrationPrefix))
		if name == "" {
			name = "webhook"
		}
		actor := auditctx.Actor{ID: integrationPrefix + name, Name: name, Role: integrationRole}
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}
