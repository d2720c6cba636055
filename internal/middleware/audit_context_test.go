package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"crmaudit/internal/auditctx"
)

func TestAuditContext(t *testing.T) {
	var got auditctx.RequestInfo
	var found bool

	r := gin.New()
	r.Use(RequestLogging(), AuditContext())
	r.POST("/api/v1/customers", func(c *gin.Context) {
		got, found = auditctx.RequestFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", http.NoBody)
	req.RemoteAddr = "10.0.0.9:5123"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "crm-web/2.1")
	req.Header.Set("X-Session-ID", "sess-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if !found {
		t.Fatal("expected request info on the context")
	}
	if got.Method != http.MethodPost || got.Path != "/api/v1/customers" {
		t.Errorf("unexpected method/path %q %q", got.Method, got.Path)
	}
	if got.SessionID != "sess-abc" || got.UserAgent != "crm-web/2.1" {
		t.Errorf("unexpected session/agent %+v", got)
	}
	if got.RequestID == "" || got.RequestID != rec.Header().Get("X-Request-ID") {
		t.Errorf("request id %q should match the response header", got.RequestID)
	}
	if addr := auditctx.ClientAddress(got); addr != "203.0.113.7" {
		t.Errorf("ClientAddress() = %q, want the first forwarded address", addr)
	}
}
