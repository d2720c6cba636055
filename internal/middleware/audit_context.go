package middleware

import (
	"github.com/gin-gonic/gin"

	"crmaudit/internal/auditctx"
)

const sessionHeader = "X-Session-ID"

// AuditContext installs the request metadata used by audit records on the
// request context. It must run after RequestLogging so the request ID is
// available.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		info := auditctx.RequestInfo{
			Method:       req.Method,
			Path:         req.URL.Path,
			ForwardedFor: req.Header.Get("X-Forwarded-For"),
			RealIP:       req.Header.Get("X-Real-IP"),
			RemoteAddr:   req.RemoteAddr,
			UserAgent:    req.UserAgent(),
			RequestID:    c.GetString(requestIDKey),
			SessionID:    req.Header.Get(sessionHeader),
		}
		c.Request = req.WithContext(auditctx.WithRequest(req.Context(), info))
		c.Next()
	}
}
