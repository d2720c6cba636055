package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"crmaudit/internal/auditctx"
	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/hashchain"
	"crmaudit/internal/models"
	"crmaudit/internal/pagination"
	"crmaudit/internal/tracing"
)

const (
	auditTable        = "audit_trail"
	verificationTable = "audit_verification_runs"
)

// AuditSearchCriteria bundles the optional filters shared by search, export
// and compliance reporting. Zero values mean "no filter". Time bounds are
// inclusive except Before, which is strict.
type AuditSearchCriteria struct {
	EntityType string
	EntityID   string
	ActorID    string
	Categories []models.EventCategory
	Sources    []models.AuditSource
	From       *time.Time
	To         *time.Time
	SearchText string

	RegulatedOnly    bool
	MissingRetention bool
	RetentionFrom    *time.Time
	RetentionTo      *time.Time
	Before           *time.Time

	Page pagination.PageRequest
}

// AuditStatistics aggregates a window of the trail.
type AuditStatistics struct {
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	TotalEvents      int64     `json:"total_events"`
	DistinctActors   int64     `json:"distinct_actors"`
	DistinctEntities int64     `json:"distinct_entities"`
	FailureCount     int64     `json:"failure_count"`
	SecurityCount    int64     `json:"security_count"`
	HumanEvents      int64     `json:"human_events"`
}

// CategoryCount is one row of a per-category histogram.
type CategoryCount struct {
	Category models.EventCategory `json:"category"`
	Count    int64                `json:"count"`
}

// auditStore is the gorm implementation of AuditStore. It owns its database
// handle; callers never pass their own transaction in, so an audit write is
// committed or rolled back independently of any business transaction.
type auditStore struct {
	db *gorm.DB
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db *gorm.DB) AuditStore {
	return &auditStore{db: db}
}

// Append inserts a sealed record. A unique-sequence violation means another
// writer advanced the chain and is reported as ErrAuditChainConflict.
func (s *auditStore) Append(ctx context.Context, record *models.AuditRecord) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationInsert)
	defer func() { end(err) }()

	if record == nil || record.Fingerprint == "" || record.PreviousLink == "" || record.Sequence <= 0 {
		return apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, "Audit record is not sealed")
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Wrap(apperrors.ErrAuditChainConflict, err)
		}
		return err
	}
	return nil
}

// LastLink returns the head of the chain, or the genesis link when empty.
func (s *auditStore) LastLink(ctx context.Context) (link models.ChainLink, err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	return s.linkWhere(s.db.WithContext(ctx))
}

// LinkBefore returns the last record strictly older than t, or the genesis
// link when there is none.
func (s *auditStore) LinkBefore(ctx context.Context, t time.Time) (link models.ChainLink, err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	return s.linkWhere(s.db.WithContext(ctx).Where("occurred_at < ?", t.UTC()))
}

func (s *auditStore) linkWhere(q *gorm.DB) (models.ChainLink, error) {
	var record models.AuditRecord
	err := q.Select("sequence", "fingerprint", "occurred_at").
		Order("occurred_at DESC").Order("sequence DESC").
		Limit(1).Find(&record).Error
	if err != nil {
		return models.ChainLink{}, err
	}
	if record.Sequence == 0 {
		return models.ChainLink{Fingerprint: hashchain.Genesis}, nil
	}
	return models.ChainLink{
		Sequence:    record.Sequence,
		Fingerprint: record.Fingerprint,
		Timestamp:   record.Timestamp.UTC(),
	}, nil
}

// Search returns a page of records matching criteria, newest first.
func (s *auditStore) Search(ctx context.Context, criteria AuditSearchCriteria) (page *pagination.PageResponse[models.AuditRecord], err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	req := criteria.Page
	req.Defaults()

	base := applyCriteria(criteria)(s.db.WithContext(ctx).Model(&models.AuditRecord{}))

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, err
	}

	var records []models.AuditRecord
	if err := base.Order("occurred_at DESC").Order("sequence DESC").
		Scopes(pagination.Paginate(req)).
		Find(&records).Error; err != nil {
		return nil, err
	}

	resp := pagination.NewPageResponse(records, req.Page, req.PageSize, totalItems)
	return &resp, nil
}

// List returns up to limit records matching criteria in chain order.
// Pagination fields of criteria are ignored.
func (s *auditStore) List(ctx context.Context, criteria AuditSearchCriteria, limit int) (records []models.AuditRecord, err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	q := applyCriteria(criteria)(s.db.WithContext(ctx)).
		Order("occurred_at ASC").Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Walk streams the records of [from, to] in chain order, batchSize at a
// time, using keyset pagination on (occurred_at, sequence).
func (s *auditStore) Walk(ctx context.Context, from, to time.Time, batchSize int, fn func([]models.AuditRecord) error) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	if batchSize <= 0 {
		batchSize = 500
	}

	var (
		lastTime time.Time
		lastSeq  int64
		started  bool
	)
	for {
		q := s.db.WithContext(ctx).
			Where("occurred_at >= ? AND occurred_at <= ?", from.UTC(), to.UTC())
		if started {
			q = q.Where("(occurred_at > ? OR (occurred_at = ? AND sequence > ?))", lastTime, lastTime, lastSeq)
		}

		var batch []models.AuditRecord
		if err := q.Order("occurred_at ASC").Order("sequence ASC").Limit(batchSize).Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}

		last := batch[len(batch)-1]
		lastTime, lastSeq, started = last.Timestamp.UTC(), last.Sequence, true
	}
}

// Count returns the number of records matching criteria.
func (s *auditStore) Count(ctx context.Context, criteria AuditSearchCriteria) (n int64, err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	err = applyCriteria(criteria)(s.db.WithContext(ctx).Model(&models.AuditRecord{})).
		Count(&n).Error
	return n, err
}

// Statistics aggregates the window [from, to] in a single query.
func (s *auditStore) Statistics(ctx context.Context, from, to time.Time) (stats *AuditStatistics, err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	var row struct {
		TotalEvents      int64
		DistinctActors   int64
		DistinctEntities int64
		FailureCount     int64
		SecurityCount    int64
		HumanEvents      int64
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_events,
			COUNT(DISTINCT actor_id) AS distinct_actors,
			COUNT(DISTINCT entity_type || ':' || entity_id) AS distinct_entities,
			COALESCE(SUM(CASE WHEN category IN ? THEN 1 ELSE 0 END), 0) AS failure_count,
			COALESCE(SUM(CASE WHEN category IN ? THEN 1 ELSE 0 END), 0) AS security_count,
			COALESCE(SUM(CASE WHEN actor_id <> ? THEN 1 ELSE 0 END), 0) AS human_events
		FROM audit_trail
		WHERE occurred_at >= ? AND occurred_at <= ?`,
		models.FailureCategories(),
		models.SecurityCategories(),
		auditctx.SystemSentinel,
		from.UTC(), to.UTC(),
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &AuditStatistics{
		From:             from.UTC(),
		To:               to.UTC(),
		TotalEvents:      row.TotalEvents,
		DistinctActors:   row.DistinctActors,
		DistinctEntities: row.DistinctEntities,
		FailureCount:     row.FailureCount,
		SecurityCount:    row.SecurityCount,
		HumanEvents:      row.HumanEvents,
	}, nil
}

// CategoryCounts returns the most frequent categories of the window.
func (s *auditStore) CategoryCounts(ctx context.Context, from, to time.Time, limit int) (counts []CategoryCount, err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	q := s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Select("category, COUNT(*) AS count").
		Where("occurred_at >= ? AND occurred_at <= ?", from.UTC(), to.UTC()).
		Group("category").
		Order("count DESC").Order("category ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&counts).Error; err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []CategoryCount{}
	}
	return counts, nil
}

// Timestamps returns the event times of the window in ascending order.
func (s *auditStore) Timestamps(ctx context.Context, from, to time.Time) (out []time.Time, err error) {
	ctx, end := tracing.StartDBSpan(ctx, auditTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	err = s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("occurred_at >= ? AND occurred_at <= ?", from.UTC(), to.UTC()).
		Order("occurred_at ASC").
		Pluck("occurred_at", &out).Error
	return out, err
}

// DeleteOlderThan removes records strictly older than cutoff. With dryRun it
// only counts them. The chain head is never removed so that new records keep
// a stored predecessor.
func (s *auditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (n int64, err error) {
	op := tracing.DBOperationDelete
	if dryRun {
		op = tracing.DBOperationQuery
	}
	ctx, end := tracing.StartDBSpan(ctx, auditTable, op)
	defer func() { end(err) }()

	headSeq := s.db.Model(&models.AuditRecord{}).Select("COALESCE(MAX(sequence), 0)")
	q := s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("occurred_at < ?", cutoff.UTC()).
		Where("sequence < (?)", headSeq)

	if dryRun {
		err = q.Count(&n).Error
		return n, err
	}

	result := q.Delete(&models.AuditRecord{})
	return result.RowsAffected, result.Error
}

// SaveVerificationRun persists the outcome of a verification.
func (s *auditStore) SaveVerificationRun(ctx context.Context, run *models.VerificationRun) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, verificationTable, tracing.DBOperationInsert)
	defer func() { end(err) }()

	return s.db.WithContext(ctx).Create(run).Error
}

// LatestVerificationRun returns the most recent verification, or nil.
func (s *auditStore) LatestVerificationRun(ctx context.Context) (run *models.VerificationRun, err error) {
	ctx, end := tracing.StartDBSpan(ctx, verificationTable, tracing.DBOperationQuery)
	defer func() { end(err) }()

	var found models.VerificationRun
	err = s.db.WithContext(ctx).Order("verified_at DESC").Limit(1).Find(&found).Error
	if err != nil {
		return nil, err
	}
	if found.ID == "" {
		return nil, nil
	}
	return &found, nil
}

// applyCriteria returns a gorm scope applying every non-zero filter of c.
func applyCriteria(c AuditSearchCriteria) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c.EntityType != "" {
			db = db.Where("entity_type = ?", c.EntityType)
		}
		if c.EntityID != "" {
			db = db.Where("entity_id = ?", c.EntityID)
		}
		if c.ActorID != "" {
			db = db.Where("actor_id = ?", c.ActorID)
		}
		if len(c.Categories) > 0 {
			db = db.Where("category IN ?", c.Categories)
		}
		if len(c.Sources) > 0 {
			db = db.Where("source IN ?", c.Sources)
		}
		if c.From != nil {
			db = db.Where("occurred_at >= ?", c.From.UTC())
		}
		if c.To != nil {
			db = db.Where("occurred_at <= ?", c.To.UTC())
		}
		if c.Before != nil {
			db = db.Where("occurred_at < ?", c.Before.UTC())
		}
		if text := strings.TrimSpace(c.SearchText); text != "" {
			like := "%" + escapeLike(strings.ToLower(text)) + "%"
			db = db.Where(
				"(LOWER(change_reason) LIKE ? ESCAPE '\\' OR LOWER(user_comment) LIKE ? ESCAPE '\\' OR LOWER(actor_name) LIKE ? ESCAPE '\\')",
				like, like, like,
			)
		}
		if c.RegulatedOnly {
			db = db.Where("regulation_relevant = ?", true)
		}
		if c.MissingRetention {
			db = db.Where("retention_until IS NULL")
		}
		if c.RetentionFrom != nil {
			db = db.Where("retention_until >= ?", c.RetentionFrom.UTC())
		}
		if c.RetentionTo != nil {
			db = db.Where("retention_until <= ?", c.RetentionTo.UTC())
		}
		return db
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
