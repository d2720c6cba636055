package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/models"
	"crmaudit/internal/services"
)

func setupWebhookRouter(cmd *mockCommandService) *gin.Engine {
	r := gin.New()
	r.POST("/webhook/audit/events", NewWebhookHandler(cmd).IngestEvent)
	return r
}

func TestWebhookHandler_IngestEvent(t *testing.T) {
	const body = `{"category":"OPPORTUNITY_STAGE_CHANGED","entity_type":"OPPORTUNITY","entity_id":"o-5","before":{"stage":"QUALIFIED"},"after":{"stage":"WON"},"reason":"ERP sync"}`

	t.Run("returns 202 and queues the event", func(t *testing.T) {
		var got services.Entry
		cmd := &mockCommandService{
			logAsyncEntryFn: func(_ context.Context, entry services.Entry) (*services.Pending, error) {
				got = entry
				return &services.Pending{}, nil
			},
		}

		rec := doRequest(setupWebhookRouter(cmd), "POST", "/webhook/audit/events", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Category != models.CategoryOpportunityStageChanged || got.Source != models.SourceWebhook {
			t.Errorf("unexpected entry %+v", got)
		}
		if after, _ := got.After.(json.RawMessage); string(after) != `{"stage":"WON"}` {
			t.Errorf("after payload should pass through verbatim, got %s", got.After)
		}
	})

	t.Run("sync returns 201 with the record id", func(t *testing.T) {
		cmd := &mockCommandService{
			logSyncFn: func(context.Context, services.Entry) (string, error) { return "rec-77", nil },
		}

		rec := doRequest(setupWebhookRouter(cmd), "POST", "/webhook/audit/events",
			`{"category":"NOTE_ADDED","entity_type":"CUSTOMER","entity_id":"c-1","sync":true}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if id := parseJSON(t, rec)["id"]; id != "rec-77" {
			t.Errorf("expected rec-77, got %v", id)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"unknown category", `{"category":"MADE_UP","entity_type":"CUSTOMER","entity_id":"c-1"}`},
		{"missing entity id", `{"category":"NOTE_ADDED","entity_type":"CUSTOMER"}`},
		{"bad entity type", `{"category":"NOTE_ADDED","entity_type":"customer","entity_id":"c-1"}`},
		{"malformed json", `{"category":`},
	}
	for _, tt := range tests {
		t.Run("returns 400 on "+tt.name, func(t *testing.T) {
			rec := doRequest(setupWebhookRouter(&mockCommandService{}), "POST", "/webhook/audit/events", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
		})
	}

	t.Run("returns 503 when the queue is full", func(t *testing.T) {
		cmd := &mockCommandService{
			logAsyncEntryFn: func(context.Context, services.Entry) (*services.Pending, error) {
				return nil, apperrors.ErrAuditQueueFull
			},
		}

		rec := doRequest(setupWebhookRouter(cmd), "POST", "/webhook/audit/events", body)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "AUDIT_QUEUE_FULL")
	})
}
