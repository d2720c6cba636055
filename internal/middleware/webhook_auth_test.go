package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"crmaudit/internal/auditctx"
	"crmaudit/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupWebhookRouter(apiKey string) *gin.Engine {
	r := gin.New()
	r.Use(WebhookAuthMiddleware(apiKey, nil))
	r.POST("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func doRequest(r *gin.Engine, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	return result
}

func TestWebhookAuthMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		configuredKey string
		requestKey    string
		wantStatus    int
		wantErrorCode string
	}{
		{
			name:          "valid_api_key",
			configuredKey: "secret-webhook-key",
			requestKey:    "secret-webhook-key",
			wantStatus:    http.StatusOK,
		},
		{
			name:          "invalid_api_key",
			configuredKey: "secret-webhook-key",
			requestKey:    "wrong-key",
			wantStatus:    http.StatusUnauthorized,
			wantErrorCode: "INVALID_API_KEY",
		},
		{
			name:          "missing_api_key",
			configuredKey: "secret-webhook-key",
			requestKey:    "",
			wantStatus:    http.StatusUnauthorized,
			wantErrorCode: "INVALID_API_KEY",
		},
		{
			name:          "empty_configured_key",
			configuredKey: "",
			requestKey:    "any-key",
			wantStatus:    http.StatusServiceUnavailable,
			wantErrorCode: "WEBHOOK_NOT_CONFIGURED",
		},
		{
			name:          "both_empty",
			configuredKey: "",
			requestKey:    "",
			wantStatus:    http.StatusServiceUnavailable,
			wantErrorCode: "WEBHOOK_NOT_CONFIGURED",
		},
		{
			name:          "partial_match_rejected",
			configuredKey: "secret-webhook-key",
			requestKey:    "secret-webhook",
			wantStatus:    http.StatusUnauthorized,
			wantErrorCode: "INVALID_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupWebhookRouter(tt.configuredKey)
			rec := doRequest(router, tt.requestKey)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantErrorCode != "" {
				body := parseBody(t, rec)
				errObj, ok := body["error"].(map[string]interface{})
				if !ok {
					t.Fatal("expected error object in response")
				}
				if code, _ := errObj["code"].(string); code != tt.wantErrorCode {
					t.Errorf("error code = %q, want %q", code, tt.wantErrorCode)
				}
			}

			if tt.wantStatus == http.StatusOK {
				body := parseBody(t, rec)
				if status, _ := body["status"].(string); status != "ok" {
					t.Errorf("expected handler to be reached, got status = %q", status)
				}
			}
		})
	}
}

func TestWebhookAuthMiddleware_Attribution(t *testing.T) {
	var got auditctx.Actor
	r := gin.New()
	r.Use(WebhookAuthMiddleware("secret-webhook-key", nil))
	r.POST("/test", func(c *gin.Context) {
		got, _ = auditctx.ActorFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	req.Header.Set("X-API-Key", "secret-webhook-key")
	req.Header.Set("X-Integration-ID", "erp")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got.ID != "integration:erp" || got.Role != "INTEGRATION" {
		t.Errorf("unexpected integration actor %+v", got)
	}
}

func TestWebhookAuthMiddleware_RecordsWrongKey(t *testing.T) {
	var categories []models.EventCategory
	recorder := &mockRecorder{
		logSecurityEventFn: func(_ context.Context, category models.EventCategory, _ string) (string, error) {
			categories = append(categories, category)
			return "rec-1", nil
		},
	}
	r := gin.New()
	r.Use(WebhookAuthMiddleware("secret-webhook-key", recorder))
	r.POST("/test", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if rec := doRequest(r, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d, want 401", rec.Code)
	}
	if len(categories) != 0 {
		t.Fatalf("a missing key should not be recorded, got %v", categories)
	}

	if rec := doRequest(r, "guessed-key"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}
	if len(categories) != 1 || categories[0] != models.CategoryLoginFailure {
		t.Errorf("expected one LOGIN_FAILURE, got %v", categories)
	}
}

func TestWebhookAuthMiddleware_LongIntegrationID(t *testing.T) {
	var got auditctx.Actor
	r := gin.New()
	r.Use(WebhookAuthMiddleware("secret-webhook-key", nil))
	r.POST("/test", func(c *gin.Context) {
		got, _ = auditctx.ActorFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	req.Header.Set("X-API-Key", "secret-webhook-key")
	req.Header.Set("X-Integration-ID", strings.Repeat("erp", 100))
	r.ServeHTTP(httptest.NewRecorder(), req)

	if n := utf8.RuneCountInString(got.ID); n != models.IdentifierWidth {
		t.Errorf("actor id has %d characters, want %d", n, models.IdentifierWidth)
	}
	if !strings.HasPrefix(got.ID, "integration:erperp") {
		t.Errorf("unexpected actor id %q", got.ID)
	}
}
