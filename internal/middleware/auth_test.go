package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crmaudit/internal/auditctx"
	"crmaudit/internal/models"
)

type mockRecorder struct {
	logSecurityEventFn func(ctx context.Context, category models.EventCategory, details string) (string, error)
}

func (m *mockRecorder) LogSecurityEvent(ctx context.Context, category models.EventCategory, details string) (string, error) {
	return m.logSecurityEventFn(ctx, category, details)
}

var testActor = auditctx.Actor{ID: "user-42", Name: "Ada Admin", Role: "admin"}

func setupAuthRouter(recorder SecurityRecorder, roles ...string) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogging(), AuditContext())
	protected := r.Group("/", AuthMiddleware())
	if len(roles) > 0 {
		protected.Use(RequireRole(recorder, roles...))
	}
	protected.GET("/whoami", func(c *gin.Context) {
		actor, _ := auditctx.ActorFrom(c.Request.Context())
		req, _ := auditctx.RequestFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"id":      actor.ID,
			"role":    c.GetString("role"),
			"session": req.SessionID,
		})
	})
	return r
}

func doAuthRequest(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	token, err := GenerateAccessToken(testActor, "sess-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	t.Run("valid_token_sets_actor", func(t *testing.T) {
		rec := doAuthRequest(setupAuthRouter(nil), "Bearer "+token)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body := parseBody(t, rec)
		if body["id"] != "user-42" || body["role"] != "admin" {
			t.Errorf("unexpected identity %v", body)
		}
		if body["session"] != "sess-1" {
			t.Errorf("session = %v, want sess-1 from claims", body["session"])
		}
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing_header", header: ""},
		{name: "wrong_scheme", header: "Token " + token},
		{name: "garbage_token", header: "Bearer not-a-jwt"},
		{name: "tampered_token", header: "Bearer " + token + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doAuthRequest(setupAuthRouter(nil), tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}

	t.Run("foreign_signing_key", func(t *testing.T) {
		claims := &JWTClaims{UserID: "user-42", TokenType: "access"}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("someone-else"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		rec := doAuthRequest(setupAuthRouter(nil), "Bearer "+forged)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestRequireRole(t *testing.T) {
	t.Run("allowed_role", func(t *testing.T) {
		token, _ := GenerateAccessToken(testActor, "")
		recorder := &mockRecorder{
			logSecurityEventFn: func(context.Context, models.EventCategory, string) (string, error) {
				t.Error("allowed requests must not be recorded")
				return "", nil
			},
		}
		rec := doAuthRequest(setupAuthRouter(recorder, "admin", "auditor"), "Bearer "+token)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("denied_role_is_recorded", func(t *testing.T) {
		sales := auditctx.Actor{ID: "user-7", Name: "Sam Sales", Role: "sales"}
		token, _ := GenerateAccessToken(sales, "")

		var (
			gotCategory models.EventCategory
			gotActor    auditctx.Actor
		)
		recorder := &mockRecorder{
			logSecurityEventFn: func(ctx context.Context, category models.EventCategory, _ string) (string, error) {
				gotCategory = category
				gotActor, _ = auditctx.ActorFrom(ctx)
				return "rec-1", nil
			},
		}

		rec := doAuthRequest(setupAuthRouter(recorder, "admin", "auditor"), "Bearer "+token)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if gotCategory != models.CategoryPermissionDenied {
			t.Errorf("category = %q, want PERMISSION_DENIED", gotCategory)
		}
		if gotActor.ID != "user-7" {
			t.Errorf("denial should be attributed to the caller, got %q", gotActor.ID)
		}

		body := parseBody(t, rec)
		errObj, _ := body["error"].(map[string]interface{})
		if errObj["code"] != "FORBIDDEN" {
			t.Errorf("error code = %v, want FORBIDDEN", errObj["code"])
		}
	})

	t.Run("nil_recorder", func(t *testing.T) {
		token, _ := GenerateAccessToken(auditctx.Actor{ID: "u", Role: "sales"}, "")
		rec := doAuthRequest(setupAuthRouter(nil, "admin"), "Bearer "+token)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}
