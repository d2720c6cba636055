package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/logger"
	"crmaudit/internal/metrics"
	"crmaudit/internal/models"
	"crmaudit/internal/tracing"
	"crmaudit/internal/uuid"
)

const auditTrailEntityType = "AUDIT_TRAIL"

// PurgeResult reports what a retention purge matched or removed.
type PurgeResult struct {
	Cutoff        time.Time `json:"cutoff"`
	DryRun        bool      `json:"dry_run"`
	Matched       int64     `json:"matched"`
	Deleted       int64     `json:"deleted"`
	AuditRecordID string    `json:"audit_record_id,omitempty"`
}

type auditRetentionService struct {
	store    AuditStore
	query    AuditQueryServicer
	commands AuditCommandServicer
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewAuditRetentionService creates a new AuditRetentionServicer.
func NewAuditRetentionService(store AuditStore, query AuditQueryServicer, commands AuditCommandServicer, m *metrics.Metrics) AuditRetentionServicer {
	return &auditRetentionService{
		store:    store,
		query:    query,
		commands: commands,
		metrics:  m,
		now:      time.Now,
	}
}

// Purge removes records older than cutoff. A dry run only counts them. A
// real purge is itself recorded as a RETENTION_PURGE event.
func (s *auditRetentionService) Purge(ctx context.Context, cutoff time.Time, dryRun bool) (result *PurgeResult, err error) {
	ctx, end := tracing.StartSpan(ctx, "audit.retention_purge",
		attribute.String("audit.purge.cutoff", cutoff.UTC().Format(time.RFC3339)),
		attribute.Bool("audit.purge.dry_run", dryRun),
	)
	defer func() { end(err) }()
	return s.purge(ctx, cutoff, dryRun)
}

func (s *auditRetentionService) purge(ctx context.Context, cutoff time.Time, dryRun bool) (*PurgeResult, error) {
	cutoff = cutoff.UTC()
	if cutoff.After(s.now().UTC()) {
		return nil, apperrors.ErrInvalidPurgeCutoff
	}

	result := &PurgeResult{Cutoff: cutoff, DryRun: dryRun}

	if dryRun {
		matched, err := s.store.DeleteOlderThan(ctx, cutoff, true)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		result.Matched = matched
		return result, nil
	}

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff, false)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	result.Matched, result.Deleted = deleted, deleted
	s.metrics.AddPurged(deleted)

	logger.Get().Infow("audit retention purge completed",
		"cutoff", cutoff,
		"deleted", deleted,
	)

	id, err := s.commands.LogSync(ctx, Entry{
		Category:   models.CategoryRetentionPurge,
		EntityType: auditTrailEntityType,
		EntityID:   uuid.NewSubjectID(),
		After: map[string]any{
			"cutoff":  cutoff.Format(time.RFC3339Nano),
			"deleted": deleted,
		},
		Reason: fmt.Sprintf("Retention purge of records older than %s", cutoff.Format(time.RFC3339)),
	})
	if err != nil {
		// The records are gone; report what happened alongside the error.
		return result, err
	}
	result.AuditRecordID = id
	return result, nil
}

// RecordVerification verifies [from, to], stores the run and raises a
// security event when the chain is compromised.
func (s *auditRetentionService) RecordVerification(ctx context.Context, from, to time.Time) (*VerificationResult, error) {
	result, err := s.query.VerifyChain(ctx, from, to)
	if err != nil {
		return nil, err
	}

	run := &models.VerificationRun{
		WindowFrom:     result.From,
		WindowTo:       result.To,
		RecordsChecked: result.RecordsChecked,
		FindingCount:   len(result.Findings),
		Status:         result.Status(),
		VerifiedAt:     result.VerifiedAt,
	}
	if err := s.store.SaveVerificationRun(ctx, run); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.metrics.SetIntegrityFindings(len(result.Findings))

	if result.Valid {
		return result, nil
	}

	logger.Get().Errorw("audit chain verification found discrepancies",
		"from", result.From,
		"to", result.To,
		"findings", len(result.Findings),
	)
	details := fmt.Sprintf("Audit chain verification found %d findings between %s and %s",
		len(result.Findings), result.From.Format(time.RFC3339), result.To.Format(time.RFC3339))
	if _, err := s.commands.LogSecurityEvent(ctx, models.CategorySecurityViolation, details); err != nil {
		logger.Get().Errorw("failed to record verification finding", "error", err)
	}
	return result, nil
}
