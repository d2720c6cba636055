package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/hashchain"
	"crmaudit/internal/models"
	"crmaudit/internal/pagination"
	"crmaudit/internal/tracing"
	"crmaudit/internal/uuid"
)

const (
	verifyBatchSize   = 500
	maxActivityPoints = 24 * 31
	maxExportRows     = 50000
	topCategoryLimit  = 5
	dashboardWindow   = 24 * time.Hour
)

// Bucket is the granularity of an activity series.
type Bucket string

const (
	BucketHour Bucket = "hour"
	BucketDay  Bucket = "day"
)

// IsValid reports whether b is a supported bucket.
func (b Bucket) IsValid() bool { return b == BucketHour || b == BucketDay }

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// IsValid reports whether f is a supported export format.
func (f ExportFormat) IsValid() bool { return f == ExportCSV || f == ExportJSON }

// ContentType returns the MIME type for f.
func (f ExportFormat) ContentType() string {
	if f == ExportCSV {
		return "text/csv"
	}
	return "application/json"
}

// VerificationResult is the outcome of walking a window of the chain.
type VerificationResult struct {
	From           time.Time           `json:"from"`
	To             time.Time           `json:"to"`
	RecordsChecked int64               `json:"records_checked"`
	Findings       []hashchain.Finding `json:"findings"`
	Valid          bool                `json:"valid"`
	VerifiedAt     time.Time           `json:"verified_at"`
}

// Status maps the result to a verification status.
func (r *VerificationResult) Status() models.VerificationStatus {
	if r.Valid {
		return models.VerificationValid
	}
	return models.VerificationCompromised
}

// ActivityPoint is the event count of one bucket.
type ActivityPoint struct {
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

// VerificationSummary is the dashboard view of the latest verification.
type VerificationSummary struct {
	Status       models.VerificationStatus `json:"status"`
	VerifiedAt   time.Time                 `json:"verified_at"`
	FindingCount int                       `json:"finding_count"`
	Scheduled    bool                      `json:"scheduled"`
}

// DashboardMetrics summarizes the last 24 hours of the trail.
type DashboardMetrics struct {
	GeneratedAt         time.Time           `json:"generated_at"`
	TotalEvents         int64               `json:"total_events"`
	ActiveActors        int64               `json:"active_actors"`
	CriticalEvents      int64               `json:"critical_events"`
	ActorCoverage       float64             `json:"actor_coverage"`
	RetentionCompliance float64             `json:"retention_compliance"`
	Verification        VerificationSummary `json:"verification"`
	LastEventAt         *time.Time          `json:"last_event_at,omitempty"`
	TopCategories       []CategoryCount     `json:"top_categories"`
	HourlyActivity      []ActivityPoint     `json:"hourly_activity"`
}

// AlertType groups compliance alerts.
type AlertType string

const (
	AlertRetention AlertType = "RETENTION"
	AlertIntegrity AlertType = "INTEGRITY"
)

// AlertSeverity ranks compliance alerts.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "INFO"
	AlertWarning  AlertSeverity = "WARNING"
	AlertCritical AlertSeverity = "CRITICAL"
)

// ComplianceAlert describes one detected compliance problem.
type ComplianceAlert struct {
	ID             string        `json:"id"`
	Type           AlertType     `json:"type"`
	Severity       AlertSeverity `json:"severity"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	AffectedCount  int64         `json:"affected_count"`
	Recommendation string        `json:"recommendation"`
}

// QueryConfig tunes reporting.
type QueryConfig struct {
	// ExpiryWarning is how far ahead retention expiry is reported.
	ExpiryWarning time.Duration
}

// auditQueryService reads and reports on the trail. It never writes
// audit records.
type auditQueryService struct {
	store AuditStore
	cfg   QueryConfig
	now   func() time.Time
}

// NewAuditQueryService creates a new AuditQueryServicer.
func NewAuditQueryService(store AuditStore, cfg QueryConfig) AuditQueryServicer {
	return &auditQueryService{store: store, cfg: cfg, now: time.Now}
}

// FindByEntity returns the history of one subject entity, newest first.
func (s *auditQueryService) FindByEntity(ctx context.Context, entityType, entityID string, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error) {
	if strings.TrimSpace(entityType) == "" || strings.TrimSpace(entityID) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Entity type and id are required")
	}
	return s.search(ctx, AuditSearchCriteria{EntityType: entityType, EntityID: entityID, Page: page})
}

// FindByActor returns what one actor did within [from, to].
func (s *auditQueryService) FindByActor(ctx context.Context, actorID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Actor id is required")
	}
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	return s.search(ctx, AuditSearchCriteria{ActorID: actorID, From: &from, To: &to, Page: page})
}

// FindSecurityEvents returns security-relevant records within [from, to].
func (s *auditQueryService) FindSecurityEvents(ctx context.Context, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	return s.search(ctx, AuditSearchCriteria{Categories: models.SecurityCategories(), From: &from, To: &to, Page: page})
}

// FindFailures returns failure records within [from, to].
func (s *auditQueryService) FindFailures(ctx context.Context, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	return s.search(ctx, AuditSearchCriteria{Categories: models.FailureCategories(), From: &from, To: &to, Page: page})
}

// Search returns a page of records matching criteria, newest first.
func (s *auditQueryService) Search(ctx context.Context, criteria AuditSearchCriteria) (*pagination.PageResponse[models.AuditRecord], error) {
	if criteria.From != nil && criteria.To != nil {
		if err := checkWindow(*criteria.From, *criteria.To); err != nil {
			return nil, err
		}
	}
	return s.search(ctx, criteria)
}

func (s *auditQueryService) search(ctx context.Context, criteria AuditSearchCriteria) (*pagination.PageResponse[models.AuditRecord], error) {
	page, err := s.store.Search(ctx, criteria)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return page, nil
}

// Statistics aggregates [from, to].
func (s *auditQueryService) Statistics(ctx context.Context, from, to time.Time) (*AuditStatistics, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	stats, err := s.store.Statistics(ctx, from, to)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return stats, nil
}

// LastFingerprint returns the fingerprint of the chain head, or the genesis
// sentinel for an empty trail.
func (s *auditQueryService) LastFingerprint(ctx context.Context) (string, error) {
	link, err := s.store.LastLink(ctx)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return link.Fingerprint, nil
}

// VerifyChain walks [from, to] in chain order. The first record is checked
// against its stored predecessor. When the window starts at the oldest
// stored record and that record is not the first ever written, the walk
// anchors on it only if a retention purge was recorded; otherwise the gap
// is reported as a finding.
func (s *auditQueryService) VerifyChain(ctx context.Context, from, to time.Time) (result *VerificationResult, err error) {
	ctx, end := tracing.StartSpan(ctx, "audit.verify_chain",
		attribute.String("audit.window.from", from.UTC().Format(time.RFC3339)),
		attribute.String("audit.window.to", to.UTC().Format(time.RFC3339)),
	)
	defer func() { end(err) }()
	return s.verifyChain(ctx, from, to)
}

func (s *auditQueryService) verifyChain(ctx context.Context, from, to time.Time) (*VerificationResult, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	from, to = from.UTC(), to.UTC()

	pred, err := s.store.LinkBefore(ctx, from)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var verifier *hashchain.Verifier
	err = s.store.Walk(ctx, from, to, verifyBatchSize, func(batch []models.AuditRecord) error {
		for i := range batch {
			if verifier == nil {
				v, err := s.startVerifier(ctx, pred, &batch[i])
				if err != nil {
					return err
				}
				verifier = v
			}
			verifier.Check(&batch[i])
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if verifier == nil {
		verifier = hashchain.NewVerifier(pred.Fingerprint)
	}

	return &VerificationResult{
		From:           from,
		To:             to,
		RecordsChecked: verifier.Checked(),
		Findings:       verifier.Findings(),
		Valid:          verifier.Valid(),
		VerifiedAt:     s.now().UTC(),
	}, nil
}

// startVerifier decides what the first record of a window must link to.
func (s *auditQueryService) startVerifier(ctx context.Context, pred models.ChainLink, first *models.AuditRecord) (*hashchain.Verifier, error) {
	if !pred.IsGenesis() {
		return hashchain.NewVerifier(pred.Fingerprint), nil
	}
	if first.Sequence == 1 {
		return hashchain.NewVerifier(hashchain.Genesis), nil
	}

	// Earlier records are gone. Only the retention purge may remove them,
	// and every purge leaves a RETENTION_PURGE record behind.
	verifier := hashchain.NewVerifier("")
	purges, err := s.store.Count(ctx, AuditSearchCriteria{Categories: []models.EventCategory{models.CategoryRetentionPurge}})
	if err != nil {
		return nil, err
	}
	if purges == 0 {
		verifier.Report(hashchain.Finding{
			RecordID:    first.ID,
			Sequence:    first.Sequence,
			Kind:        hashchain.FindingUnexplainedGap,
			Description: fmt.Sprintf("records before %d are missing and no retention purge was recorded", first.Sequence),
			Expected:    string(models.CategoryRetentionPurge),
			Actual:      first.PreviousLink,
		})
	}
	return verifier, nil
}

// Dashboard summarizes the last 24 hours.
func (s *auditQueryService) Dashboard(ctx context.Context) (dashboard *DashboardMetrics, err error) {
	ctx, end := tracing.StartSpan(ctx, "audit.dashboard")
	defer func() { end(err) }()
	return s.dashboard(ctx)
}

func (s *auditQueryService) dashboard(ctx context.Context) (*DashboardMetrics, error) {
	now := s.now().UTC()
	from := now.Add(-dashboardWindow)

	stats, err := s.store.Statistics(ctx, from, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	critical, err := s.store.Count(ctx, AuditSearchCriteria{Categories: criticalCategories(), From: &from, To: &now})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	compliance, err := s.retentionCompliance(ctx, now)
	if err != nil {
		return nil, err
	}
	verification, err := s.verificationSummary(ctx, from, now)
	if err != nil {
		return nil, err
	}
	top, err := s.store.CategoryCounts(ctx, from, now, topCategoryLimit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	hourly, err := s.ActivitySeries(ctx, from, now, BucketHour)
	if err != nil {
		return nil, err
	}
	head, err := s.store.LastLink(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	metrics := &DashboardMetrics{
		GeneratedAt:         now,
		TotalEvents:         stats.TotalEvents,
		ActiveActors:        stats.DistinctActors,
		CriticalEvents:      critical,
		ActorCoverage:       percentage(stats.HumanEvents, stats.TotalEvents),
		RetentionCompliance: compliance,
		Verification:        verification,
		TopCategories:       top,
		HourlyActivity:      hourly,
	}
	if !head.IsGenesis() {
		last := head.Timestamp
		metrics.LastEventAt = &last
	}
	return metrics, nil
}

// retentionCompliance is the share of all records that carry a policy when
// required and have not outlived it.
func (s *auditQueryService) retentionCompliance(ctx context.Context, now time.Time) (float64, error) {
	total, err := s.store.Count(ctx, AuditSearchCriteria{})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if total == 0 {
		return 100, nil
	}
	expired, err := s.store.Count(ctx, AuditSearchCriteria{RetentionTo: &now})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	missing, err := s.store.Count(ctx, AuditSearchCriteria{RegulatedOnly: true, MissingRetention: true})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return percentage(total-expired-missing, total), nil
}

func (s *auditQueryService) verificationSummary(ctx context.Context, from, to time.Time) (VerificationSummary, error) {
	run, err := s.store.LatestVerificationRun(ctx)
	if err != nil {
		return VerificationSummary{}, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if run != nil {
		return VerificationSummary{
			Status:       run.Status,
			VerifiedAt:   run.VerifiedAt,
			FindingCount: run.FindingCount,
			Scheduled:    true,
		}, nil
	}

	result, err := s.VerifyChain(ctx, from, to)
	if err != nil {
		return VerificationSummary{}, err
	}
	return VerificationSummary{
		Status:       result.Status(),
		VerifiedAt:   result.VerifiedAt,
		FindingCount: len(result.Findings),
	}, nil
}

// ActivitySeries counts events per bucket over [from, to]. Empty buckets
// are reported with a zero count.
func (s *auditQueryService) ActivitySeries(ctx context.Context, from, to time.Time, bucket Bucket) ([]ActivityPoint, error) {
	if !bucket.IsValid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Bucket must be hour or day")
	}
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	from, to = from.UTC(), to.UTC()

	first, last := bucketStart(from, bucket), bucketStart(to, bucket)
	step := bucketWidth(bucket)
	n := int(last.Sub(first)/step) + 1
	if n > maxActivityPoints {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTimeWindow,
			fmt.Sprintf("Window spans %d buckets; at most %d are allowed", n, maxActivityPoints))
	}

	times, err := s.store.Timestamps(ctx, from, to)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	points := make([]ActivityPoint, n)
	for i := range points {
		points[i].Start = first.Add(time.Duration(i) * step)
	}
	for _, t := range times {
		i := int(bucketStart(t.UTC(), bucket).Sub(first) / step)
		if i >= 0 && i < n {
			points[i].Count++
		}
	}
	return points, nil
}

func bucketStart(t time.Time, bucket Bucket) time.Time {
	if bucket == BucketDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(time.Hour)
}

func bucketWidth(bucket Bucket) time.Duration {
	if bucket == BucketDay {
		return 24 * time.Hour
	}
	return time.Hour
}

// ComplianceAlerts reports retention and integrity problems. An empty slice
// means nothing needs attention.
func (s *auditQueryService) ComplianceAlerts(ctx context.Context) ([]ComplianceAlert, error) {
	now := s.now().UTC()
	alerts := []ComplianceAlert{}

	missing, err := s.store.Count(ctx, AuditSearchCriteria{RegulatedOnly: true, MissingRetention: true})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if missing > 0 {
		alerts = append(alerts, ComplianceAlert{
			ID:             uuid.NewSubjectID(),
			Type:           AlertRetention,
			Severity:       AlertWarning,
			Title:          "Regulated records without retention policy",
			Description:    fmt.Sprintf("%d regulation-relevant audit records have no retention date.", missing),
			AffectedCount:  missing,
			Recommendation: "Enable AUDIT_RETENTION_DAYS so new records are stamped with a retention date",
		})
	}

	if s.cfg.ExpiryWarning > 0 {
		soonFrom, soonTo := now.Add(time.Millisecond), now.Add(s.cfg.ExpiryWarning)
		expiring, err := s.store.Count(ctx, AuditSearchCriteria{RetentionFrom: &soonFrom, RetentionTo: &soonTo})
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if expiring > 0 {
			alerts = append(alerts, ComplianceAlert{
				ID:             uuid.NewSubjectID(),
				Type:           AlertRetention,
				Severity:       AlertInfo,
				Title:          "Retention expiring soon",
				Description:    fmt.Sprintf("%d audit records reach the end of retention within %s.", expiring, formatDays(s.cfg.ExpiryWarning)),
				AffectedCount:  expiring,
				Recommendation: "Schedule a retention purge once the records expire",
			})
		}
	}

	expired, err := s.store.Count(ctx, AuditSearchCriteria{RetentionTo: &now})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if expired > 0 {
		alerts = append(alerts, ComplianceAlert{
			ID:             uuid.NewSubjectID(),
			Type:           AlertRetention,
			Severity:       AlertWarning,
			Title:          "Expired records not purged",
			Description:    fmt.Sprintf("%d audit records are past their retention date.", expired),
			AffectedCount:  expired,
			Recommendation: "Run a retention purge",
		})
	}

	result, err := s.VerifyChain(ctx, now.Add(-dashboardWindow), now)
	if err != nil {
		return nil, err
	}
	if n := len(result.Findings); n > 0 {
		alerts = append(alerts, ComplianceAlert{
			ID:             uuid.NewSubjectID(),
			Type:           AlertIntegrity,
			Severity:       AlertCritical,
			Title:          "Audit trail integrity compromised",
			Description:    fmt.Sprintf("%d integrity findings were detected in the last 24 hours.", n),
			AffectedCount:  int64(n),
			Recommendation: "Inspect the affected records immediately",
		})
	}

	return alerts, nil
}

// Export writes the records matching criteria to w in chain order and
// returns how many were written.
func (s *auditQueryService) Export(ctx context.Context, criteria AuditSearchCriteria, format ExportFormat, w io.Writer) (int, error) {
	if !format.IsValid() {
		return 0, apperrors.ErrUnsupportedFormat
	}
	if criteria.From != nil && criteria.To != nil {
		if err := checkWindow(*criteria.From, *criteria.To); err != nil {
			return 0, err
		}
	}

	records, err := s.store.List(ctx, criteria, maxExportRows)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if records == nil {
		records = []models.AuditRecord{}
	}

	if format == ExportJSON {
		if err := json.NewEncoder(w).Encode(records); err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return len(records), nil
	}

	if err := writeCSV(w, records); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return len(records), nil
}

var csvHeader = []string{
	"id", "sequence", "timestamp", "category", "entity_type", "entity_id",
	"actor_id", "actor_name", "actor_role", "source", "endpoint",
	"change_reason", "user_comment", "client_address", "regulation_relevant",
	"retention_until", "previous_link", "fingerprint",
}

func writeCSV(w io.Writer, records []models.AuditRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range records {
		r := &records[i]
		retention := ""
		if r.RetentionUntil != nil {
			retention = r.RetentionUntil.UTC().Format(time.RFC3339Nano)
		}
		row := []string{
			r.ID,
			strconv.FormatInt(r.Sequence, 10),
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			string(r.Category),
			r.EntityType,
			r.EntityID,
			r.ActorID,
			r.ActorName,
			r.ActorRole,
			string(r.Source),
			r.Endpoint,
			r.ChangeReason,
			r.UserComment,
			r.ClientAddress,
			strconv.FormatBool(r.RegulationRelevant),
			retention,
			r.PreviousLink,
			r.Fingerprint,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// criticalCategories are failures plus anything that escalates.
func criticalCategories() []models.EventCategory {
	seen := map[models.EventCategory]bool{}
	var out []models.EventCategory
	for _, c := range append(models.FailureCategories(), models.NotifyCategories()...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func checkWindow(from, to time.Time) error {
	if from.After(to) {
		return apperrors.ErrInvalidTimeWindow
	}
	return nil
}

// percentage returns part/total as a percentage with one decimal; an empty
// total counts as fully compliant.
func percentage(part, total int64) float64 {
	if total <= 0 {
		return 100
	}
	if part < 0 {
		part = 0
	}
	return math.Round(float64(part)*1000/float64(total)) / 10
}

func formatDays(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
