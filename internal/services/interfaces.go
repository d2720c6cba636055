package services

import (
	"context"
	"io"
	"time"

	"crmaudit/internal/models"
	"crmaudit/internal/pagination"
)

// AuditStore persists and reads the audit trail. Implementations own their
// transactions; no method joins a caller's transaction.
type AuditStore interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	LastLink(ctx context.Context) (models.ChainLink, error)
	LinkBefore(ctx context.Context, t time.Time) (models.ChainLink, error)
	Search(ctx context.Context, criteria AuditSearchCriteria) (*pagination.PageResponse[models.AuditRecord], error)
	List(ctx context.Context, criteria AuditSearchCriteria, limit int) ([]models.AuditRecord, error)
	Walk(ctx context.Context, from, to time.Time, batchSize int, fn func([]models.AuditRecord) error) error
	Count(ctx context.Context, criteria AuditSearchCriteria) (int64, error)
	Statistics(ctx context.Context, from, to time.Time) (*AuditStatistics, error)
	CategoryCounts(ctx context.Context, from, to time.Time, limit int) ([]CategoryCount, error)
	Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int64, error)
	SaveVerificationRun(ctx context.Context, run *models.VerificationRun) error
	LatestVerificationRun(ctx context.Context) (*models.VerificationRun, error)
}

// AuditCommandServicer defines the contract for recording audit events.
type AuditCommandServicer interface {
	LogAsync(ctx context.Context, category models.EventCategory, entityType, entityID string, before, after any, reason string) (*Pending, error)
	LogAsyncEntry(ctx context.Context, entry Entry) (*Pending, error)
	LogSync(ctx context.Context, entry Entry) (string, error)
	LogSecurityEvent(ctx context.Context, category models.EventCategory, details string) (string, error)
	LogExport(ctx context.Context, exportType string, params map[string]any) (string, error)
	Close(ctx context.Context) error
}

// AuditQueryServicer defines the contract for reading, verifying and
// reporting on the audit trail.
type AuditQueryServicer interface {
	FindByEntity(ctx context.Context, entityType, entityID string, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error)
	FindByActor(ctx context.Context, actorID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error)
	FindSecurityEvents(ctx context.Context, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error)
	FindFailures(ctx context.Context, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.AuditRecord], error)
	Search(ctx context.Context, criteria AuditSearchCriteria) (*pagination.PageResponse[models.AuditRecord], error)
	Statistics(ctx context.Context, from, to time.Time) (*AuditStatistics, error)
	LastFingerprint(ctx context.Context) (string, error)
	VerifyChain(ctx context.Context, from, to time.Time) (*VerificationResult, error)
	Dashboard(ctx context.Context) (*DashboardMetrics, error)
	ActivitySeries(ctx context.Context, from, to time.Time, bucket Bucket) ([]ActivityPoint, error)
	ComplianceAlerts(ctx context.Context) ([]ComplianceAlert, error)
	Export(ctx context.Context, criteria AuditSearchCriteria, format ExportFormat, w io.Writer) (int, error)
}

// AuditRetentionServicer defines the contract for retention enforcement and
// scheduled verification.
type AuditRetentionServicer interface {
	Purge(ctx context.Context, cutoff time.Time, dryRun bool) (*PurgeResult, error)
	RecordVerification(ctx context.Context, from, to time.Time) (*VerificationResult, error)
}
