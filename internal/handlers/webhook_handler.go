package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/models"
	"crmaudit/internal/services"
)

// WebhookHandler accepts audit events pushed by integrated systems.
type WebhookHandler struct {
	commands services.AuditCommandServicer
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(commands services.AuditCommandServicer) *WebhookHandler {
	return &WebhookHandler{commands: commands}
}

// IngestEventRequest represents an audit event submitted by an integration.
type IngestEventRequest struct {
	Category   string          `json:"category" binding:"required,audit_category"`
	EntityType string          `json:"entity_type" binding:"required,entity_type"`
	EntityID   string          `json:"entity_id" binding:"required,max=100"`
	Before     json.RawMessage `json:"before" swaggertype:"object"`
	After      json.RawMessage `json:"after" swaggertype:"object"`
	Reason     string          `json:"reason" binding:"max=500"`
	Comment    string          `json:"comment" binding:"max=1000"`
	// Sync waits for the record to be chained and returns its id.
	Sync bool `json:"sync"`
}

// IngestEvent handles an inbound audit event.
// @Summary     Ingest an audit event
// @Description Record an event from an integrated system. Async by default (202); set sync for 201 with the record id
// @Tags        webhook
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body IngestEventRequest true "Event"
// @Success     201 {object} map[string]string "Recorded"
// @Success     202 {object} map[string]string "Accepted"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     500 {object} ErrorResponse "Server error"
// @Failure     503 {object} ErrorResponse "Audit queue full"
// @Router      /webhook/audit/events [post]
func (h *WebhookHandler) IngestEvent(c *gin.Context) {
	var req IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	entry := services.Entry{
		Category:   models.EventCategory(req.Category),
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Before:     req.Before,
		After:      req.After,
		Reason:     req.Reason,
		Comment:    req.Comment,
		Source:     models.SourceWebhook,
	}

	if req.Sync {
		id, err := h.commands.LogSync(c.Request.Context(), entry)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
		return
	}

	if _, err := h.commands.LogAsyncEntry(c.Request.Context(), entry); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
