package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"crmaudit/internal/auditctx"
	"crmaudit/internal/handlers"
	"crmaudit/internal/logger"
	"crmaudit/internal/middleware"
	"crmaudit/internal/services"
	"crmaudit/internal/testutil"
	"crmaudit/internal/validator"
)

const webhookKey = "integration-webhook-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Commands services.AuditCommandServicer
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)

	// Services
	store := services.NewAuditStore(db)
	commands := services.NewAuditCommandService(services.CommandDeps{Store: store}, services.CommandConfig{Workers: 2, QueueSize: 64})
	query := services.NewAuditQueryService(store, services.QueryConfig{ExpiryWarning: 30 * 24 * time.Hour})
	retention := services.NewAuditRetentionService(store, query, commands, nil)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := commands.Close(ctx); err != nil {
			t.Errorf("failed to drain audit service: %v", err)
		}
		testutil.TeardownTestDB(t, db)
	})

	// Handlers
	auditHandler := handlers.NewAuditHandler(commands, query, retention)
	webhookHandler := handlers.NewWebhookHandler(commands)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.AuditContext())
	router.Use(middleware.ErrorHandler())

	webhook := router.Group("/webhook", middleware.WebhookAuthMiddleware(webhookKey, commands))
	webhook.POST("/audit/events", webhookHandler.IngestEvent)

	admin := router.Group("/api/v1/admin/audit")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireRole(commands, "admin", "manager"))
	auditHandler.RegisterRoutes(admin)

	return &testApp{DB: db, Router: router, Commands: commands}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// ingest posts an event through the webhook synchronously and returns its id.
func (app *testApp) ingest(t *testing.T, category, entityType, entityID, after string) string {
	t.Helper()
	body := fmt.Sprintf(`{"category":%q,"entity_type":%q,"entity_id":%q,"after":%s,"sync":true}`, category, entityType, entityID, after)
	req := httptest.NewRequest(http.MethodPost, "/webhook/audit/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", webhookKey)
	req.Header.Set("X-Integration-ID", "erp")
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["id"].(string)
}

// tokenFor issues an access token for a user with role.
func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := middleware.GenerateAccessToken(auditctx.Actor{ID: userID, Name: "Test " + role, Role: role}, "sess-"+userID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}
