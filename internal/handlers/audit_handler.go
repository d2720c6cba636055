package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/models"
	"crmaudit/internal/pagination"
	"crmaudit/internal/services"
)

const exportTypeAuditTrail = "AUDIT_TRAIL"

// AuditHandler serves the admin audit API.
type AuditHandler struct {
	commands  services.AuditCommandServicer
	query     services.AuditQueryServicer
	retention services.AuditRetentionServicer
	now       func() time.Time
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(commands services.AuditCommandServicer, query services.AuditQueryServicer, retention services.AuditRetentionServicer) *AuditHandler {
	return &AuditHandler{commands: commands, query: query, retention: retention, now: time.Now}
}

// RegisterRoutes mounts the audit endpoints on group.
func (h *AuditHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.Search)
	group.GET("/entities/:type/:id", h.GetEntityHistory)
	group.GET("/actors/:id", h.GetActorActivity)
	group.GET("/security", h.GetSecurityEvents)
	group.GET("/failures", h.GetFailures)
	group.GET("/statistics", h.GetStatistics)
	group.GET("/dashboard", h.GetDashboard)
	group.GET("/activity", h.GetActivity)
	group.GET("/verify", h.VerifyChain)
	group.GET("/chain/head", h.GetChainHead)
	group.GET("/compliance/alerts", h.GetComplianceAlerts)
	group.GET("/export", h.Export)
	group.POST("/retention/purge", h.Purge)
}

// AuditSearchQuery holds the filters accepted by search and export.
type AuditSearchQuery struct {
	pagination.PageRequest
	EntityType string   `form:"entity_type" binding:"omitempty,entity_type"`
	EntityID   string   `form:"entity_id" binding:"max=100"`
	ActorID    string   `form:"actor_id" binding:"max=100"`
	Categories []string `form:"category" binding:"omitempty,dive,audit_category"`
	Sources    []string `form:"source" binding:"omitempty,dive,audit_source"`
	From       string   `form:"from"`
	To         string   `form:"to"`
	Text       string   `form:"q" binding:"max=200"`
}

// ExportQuery adds the output format to the search filters.
type ExportQuery struct {
	AuditSearchQuery
	Format string `form:"format" binding:"omitempty,export_format"`
}

// PurgeRequest represents the request payload for a retention purge.
type PurgeRequest struct {
	Cutoff string `json:"cutoff" binding:"required"`
	// DryRun defaults to true; a purge only deletes when it is explicitly false.
	DryRun *bool `json:"dry_run"`
}

// VerificationResponse wraps a chain verification result with its status.
type VerificationResponse struct {
	Status       models.VerificationStatus    `json:"status"`
	Verification *services.VerificationResult `json:"verification"`
}

func (q AuditSearchQuery) criteria() (services.AuditSearchCriteria, error) {
	criteria := services.AuditSearchCriteria{
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		ActorID:    q.ActorID,
		SearchText: q.Text,
		Page:       q.PageRequest,
	}
	for _, c := range q.Categories {
		criteria.Categories = append(criteria.Categories, models.EventCategory(c))
	}
	for _, s := range q.Sources {
		criteria.Sources = append(criteria.Sources, models.AuditSource(s))
	}
	if q.From != "" {
		from, err := parseFlexibleTime(q.From)
		if err != nil {
			return criteria, apperrors.WithMessage(apperrors.ErrInvalidInput, "from must be an ISO-8601 timestamp or date")
		}
		criteria.From = &from
	}
	if q.To != "" {
		to, err := parseFlexibleTime(q.To)
		if err != nil {
			return criteria, apperrors.WithMessage(apperrors.ErrInvalidInput, "to must be an ISO-8601 timestamp or date")
		}
		criteria.To = &to
	}
	if criteria.From != nil && criteria.To != nil && criteria.From.After(*criteria.To) {
		return criteria, apperrors.ErrInvalidTimeWindow
	}
	return criteria, nil
}

// Search handles filtered, paginated listing of the audit trail.
// @Summary     Search the audit trail
// @Description List audit records newest first, filtered by entity, actor, category, source, window and text
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       entity_type query string   false "Subject entity type"
// @Param       entity_id   query string   false "Subject entity id"
// @Param       actor_id    query string   false "Actor id"
// @Param       category    query []string false "Event categories" collectionFormat(multi)
// @Param       source      query []string false "Sources" collectionFormat(multi)
// @Param       from        query string   false "Window start (ISO-8601)"
// @Param       to          query string   false "Window end (ISO-8601)"
// @Param       q           query string   false "Case-insensitive text in reason or comment"
// @Param       page        query int      false "Page number (default 1)"
// @Param       page_size   query int      false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.AuditRecord] "Paginated audit records"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit [get]
func (h *AuditHandler) Search(c *gin.Context) {
	var q AuditSearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	criteria, err := q.criteria()
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.query.Search(c.Request.Context(), criteria)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEntityHistory handles retrieving the history of one subject entity.
// @Summary     Entity history
// @Description List the audit records of one subject entity, newest first
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       type      path  string true  "Entity type"
// @Param       id        path  string true  "Entity id"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.AuditRecord] "Paginated audit records"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/entities/{type}/{id} [get]
func (h *AuditHandler) GetEntityHistory(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.query.FindByEntity(c.Request.Context(), c.Param("type"), c.Param("id"), page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetActorActivity handles retrieving what one actor did within a window.
// @Summary     Actor activity
// @Description List the audit records caused by one actor within a window (default: last 24 hours)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Actor id"
// @Param       from      query string false "Window start (ISO-8601)"
// @Param       to        query string false "Window end (ISO-8601)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.AuditRecord] "Paginated audit records"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/actors/{id} [get]
func (h *AuditHandler) GetActorActivity(c *gin.Context) {
	page, from, to, ok := h.bindWindowedPage(c)
	if !ok {
		return
	}

	result, err := h.query.FindByActor(c.Request.Context(), c.Param("id"), from, to, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSecurityEvents handles listing security-relevant events.
// @Summary     Security events
// @Description List security-relevant audit records within a window (default: last 24 hours)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       from      query string false "Window start (ISO-8601)"
// @Param       to        query string false "Window end (ISO-8601)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.AuditRecord] "Paginated audit records"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/security [get]
func (h *AuditHandler) GetSecurityEvents(c *gin.Context) {
	page, from, to, ok := h.bindWindowedPage(c)
	if !ok {
		return
	}

	result, err := h.query.FindSecurityEvents(c.Request.Context(), from, to, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetFailures handles listing failure events.
// @Summary     Failure events
// @Description List failure audit records within a window (default: last 24 hours)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       from      query string false "Window start (ISO-8601)"
// @Param       to        query string false "Window end (ISO-8601)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.AuditRecord] "Paginated audit records"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/failures [get]
func (h *AuditHandler) GetFailures(c *gin.Context) {
	page, from, to, ok := h.bindWindowedPage(c)
	if !ok {
		return
	}

	result, err := h.query.FindFailures(c.Request.Context(), from, to, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetStatistics handles aggregate statistics for a window.
// @Summary     Audit statistics
// @Description Aggregate counts for a window (default: last 24 hours)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       from query string false "Window start (ISO-8601)"
// @Param       to   query string false "Window end (ISO-8601)"
// @Success     200 {object} services.AuditStatistics "Statistics"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/statistics [get]
func (h *AuditHandler) GetStatistics(c *gin.Context) {
	from, to, err := parseWindow(c, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	stats, err := h.query.Statistics(c.Request.Context(), from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// GetDashboard handles the compliance dashboard.
// @Summary     Audit dashboard
// @Description Headline metrics for the last 24 hours, integrity status and hourly activity
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.DashboardMetrics "Dashboard metrics"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/dashboard [get]
func (h *AuditHandler) GetDashboard(c *gin.Context) {
	metrics, err := h.query.Dashboard(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dashboard": metrics})
}

// GetActivity handles the bucketed activity series.
// @Summary     Activity series
// @Description Event counts per hour or day within a window (default: last 24 hours, hourly)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       from   query string false "Window start (ISO-8601)"
// @Param       to     query string false "Window end (ISO-8601)"
// @Param       bucket query string false "hour or day"
// @Success     200 {array}  services.ActivityPoint "Activity points"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/activity [get]
func (h *AuditHandler) GetActivity(c *gin.Context) {
	from, to, err := parseWindow(c, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	bucket := services.BucketHour
	if v := c.Query("bucket"); v != "" {
		bucket = services.Bucket(v)
		if !bucket.IsValid() {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "bucket must be 'hour' or 'day'"))
			return
		}
	}

	points, err := h.query.ActivitySeries(c.Request.Context(), from, to, bucket)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": points})
}

// VerifyChain handles on-demand chain verification.
// @Summary     Verify the hash chain
// @Description Recompute fingerprints and check links for a window (default: last 24 hours)
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Param       from query string false "Window start (ISO-8601)"
// @Param       to   query string false "Window end (ISO-8601)"
// @Success     200 {object} VerificationResponse "Verification result"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/verify [get]
func (h *AuditHandler) VerifyChain(c *gin.Context) {
	from, to, err := parseWindow(c, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.query.VerifyChain(c.Request.Context(), from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerificationResponse{Status: result.Status(), Verification: result})
}

// GetChainHead handles retrieving the newest fingerprint.
// @Summary     Chain head
// @Description The fingerprint of the newest record, or GENESIS for an empty trail
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]string "Chain head fingerprint"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/chain/head [get]
func (h *AuditHandler) GetChainHead(c *gin.Context) {
	fingerprint, err := h.query.LastFingerprint(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"fingerprint": fingerprint})
}

// GetComplianceAlerts handles the retention and integrity alerts.
// @Summary     Compliance alerts
// @Description Retention and integrity conditions needing attention
// @Tags        audit
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  services.ComplianceAlert "Alerts"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/compliance/alerts [get]
func (h *AuditHandler) GetComplianceAlerts(c *gin.Context) {
	alerts, err := h.query.ComplianceAlerts(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// Export handles streaming the filtered trail as CSV or JSON. The export
// itself is audited before any data is written.
// @Summary     Export the audit trail
// @Description Stream records matching the filters as CSV (default) or JSON
// @Tags        audit
// @Produce     text/csv
// @Produce     json
// @Security    BearerAuth
// @Param       format      query string   false "csv or json"
// @Param       entity_type query string   false "Subject entity type"
// @Param       entity_id   query string   false "Subject entity id"
// @Param       actor_id    query string   false "Actor id"
// @Param       category    query []string false "Event categories" collectionFormat(multi)
// @Param       from        query string   false "Window start (ISO-8601)"
// @Param       to          query string   false "Window end (ISO-8601)"
// @Success     200 {file}   file "Export file"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	var q ExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	criteria, err := q.criteria()
	if err != nil {
		respondWithError(c, err)
		return
	}

	format := services.ExportCSV
	if q.Format != "" {
		format = services.ExportFormat(q.Format)
	}

	ctx := c.Request.Context()
	params := map[string]any{
		"format":      string(format),
		"entity_type": q.EntityType,
		"entity_id":   q.EntityID,
		"actor_id":    q.ActorID,
		"categories":  q.Categories,
		"from":        q.From,
		"to":          q.To,
	}
	if _, err := h.commands.LogExport(ctx, exportTypeAuditTrail, params); err != nil {
		respondWithError(c, err)
		return
	}

	filename := fmt.Sprintf("audit-trail-%s.%s", h.now().UTC().Format("20060102T150405Z"), format)
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if _, err := h.query.Export(ctx, criteria, format, c.Writer); err != nil {
		if c.Writer.Written() {
			_ = c.Error(err)
			return
		}
		c.Writer.Header().Del("Content-Disposition")
		respondWithError(c, err)
	}
}

// Purge handles retention enforcement.
// @Summary     Purge expired records
// @Description Delete records older than the cutoff. Runs as a dry run unless dry_run is false
// @Tags        audit
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body PurgeRequest true "Purge parameters"
// @Success     200 {object} services.PurgeResult "Purge result"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/audit/retention/purge [post]
func (h *AuditHandler) Purge(c *gin.Context) {
	if _, err := getUserID(c); err != nil {
		respondWithError(c, err)
		return
	}

	var req PurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	cutoff, err := parseFlexibleTime(req.Cutoff)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "cutoff must be an ISO-8601 timestamp or date"))
		return
	}
	dryRun := req.DryRun == nil || *req.DryRun

	result, err := h.retention.Purge(c.Request.Context(), cutoff, dryRun)
	if err != nil && result == nil {
		respondWithError(c, err)
		return
	}
	if err != nil {
		// Records were deleted but the purge itself could not be recorded.
		c.JSON(http.StatusInternalServerError, gin.H{
			"purge": result,
			"error": gin.H{"code": apperrors.ErrAuditWriteFailed.Code, "message": "Purge completed but could not be audited"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purge": result})
}

func (h *AuditHandler) bindWindowedPage(c *gin.Context) (pagination.PageRequest, time.Time, time.Time, bool) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return page, time.Time{}, time.Time{}, false
	}
	from, to, err := parseWindow(c, h.now())
	if err != nil {
		respondWithError(c, err)
		return page, time.Time{}, time.Time{}, false
	}
	return page, from, to, true
}
