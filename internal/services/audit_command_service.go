package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"crmaudit/internal/auditctx"
	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/hashchain"
	"crmaudit/internal/logger"
	"crmaudit/internal/metrics"
	"crmaudit/internal/models"
	"crmaudit/internal/notify"
	"crmaudit/internal/uuid"
)

const (
	maxAppendAttempts    = 8
	defaultWorkers       = 4
	defaultQueueSize     = 1024
	defaultNotifyTimeout = 5 * time.Second

	securityEntityType = "SECURITY"
	exportEntityType   = "EXPORT"

	modeSync  = "sync"
	modeAsync = "async"
)

// regulationLongRetention applies to erasure-related categories.
const regulationLongRetention = 10 * 365 * 24 * time.Hour

// Entry is what a domain operation submits to the audit trail.
type Entry struct {
	Category   models.EventCategory
	EntityType string
	EntityID   string
	Before     any
	After      any
	Reason     string
	Comment    string
	// Source overrides the channel derived from the request, if set.
	Source models.AuditSource
}

// CommandConfig tunes the command service.
type CommandConfig struct {
	Workers       int
	QueueSize     int
	Retention     time.Duration
	NotifyTimeout time.Duration
}

// CommandDeps are the collaborators of the command service. Only Store is
// required.
type CommandDeps struct {
	Store    AuditStore
	Resolver *auditctx.Resolver
	Sink     notify.Sink
	Fallback *zap.SugaredLogger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
}

// Pending resolves to the id of an asynchronously written record.
type Pending struct {
	done chan struct{}
	id   string
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(id string, err error) {
	p.id, p.err = id, err
	close(p.done)
}

// Done is closed once the write has completed or failed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the write completes or ctx ends. Giving up on the wait
// does not cancel the write.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.id, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// draft is an unsigned record. Only seal produces a persistable record.
type draft struct {
	id           string
	occurredAt   time.Time
	category     models.EventCategory
	entityType   string
	entityID     string
	before       string
	after        string
	reason       string
	comment      string
	source       models.AuditSource
	meta         auditctx.Metadata
	regulated    bool
	retentionFor time.Duration
}

// seal links the draft behind head and computes its fingerprint.
func (d *draft) seal(head models.ChainLink) *models.AuditRecord {
	ts := d.occurredAt
	if ts.Before(head.Timestamp) {
		ts = head.Timestamp
	}

	record := &models.AuditRecord{
		ID:                 d.id,
		Sequence:           head.Sequence + 1,
		Timestamp:          ts,
		Category:           d.category,
		EntityType:         d.entityType,
		EntityID:           d.entityID,
		ActorID:            d.meta.Actor.ID,
		ActorName:          d.meta.Actor.Name,
		ActorRole:          d.meta.Actor.Role,
		ChangeReason:       d.reason,
		UserComment:        d.comment,
		Source:             d.source,
		Endpoint:           d.meta.Endpoint,
		RequestID:          d.meta.RequestID,
		SessionID:          d.meta.SessionID,
		Before:             d.before,
		After:              d.after,
		ClientAddress:      d.meta.ClientAddress,
		UserAgent:          d.meta.UserAgent,
		RegulationRelevant: d.regulated,
		PreviousLink:       head.Fingerprint,
		SchemaVersion:      models.CurrentSchemaVersion,
	}
	if d.retentionFor > 0 {
		until := ts.Add(d.retentionFor)
		record.RetentionUntil = &until
	}
	record.Fingerprint = hashchain.Fingerprint(hashchain.InputOf(record), record.PreviousLink)
	return record
}

// chainCache remembers the last link this process wrote. It is an
// accelerator only; a cold cache is always refilled from the store.
type chainCache struct {
	mu    sync.Mutex
	link  models.ChainLink
	valid bool
}

func (c *chainCache) Get() (models.ChainLink, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link, c.valid
}

func (c *chainCache) Set(link models.ChainLink) {
	c.mu.Lock()
	c.link, c.valid = link, true
	c.mu.Unlock()
}

func (c *chainCache) Invalidate() {
	c.mu.Lock()
	c.link, c.valid = models.ChainLink{}, false
	c.mu.Unlock()
}

type auditTask struct {
	ctx     context.Context
	draft   *draft
	pending *Pending
}

// auditCommandService turns domain events into chained audit records.
type auditCommandService struct {
	store    AuditStore
	resolver *auditctx.Resolver
	sink     notify.Sink
	fallback *zap.SugaredLogger
	metrics  *metrics.Metrics
	now      func() time.Time
	cfg      CommandConfig

	// chainMu serializes head lookup, sealing and append within the process.
	chainMu sync.Mutex
	cache   chainCache

	queue     chan *auditTask
	workers   sync.WaitGroup
	notifying sync.WaitGroup

	stateMu sync.RWMutex
	closed  bool
}

// NewAuditCommandService creates the command service and starts its workers.
func NewAuditCommandService(deps CommandDeps, cfg CommandConfig) AuditCommandServicer {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if deps.Resolver == nil {
		deps.Resolver = auditctx.NewResolver(nil)
	}
	if deps.Fallback == nil {
		deps.Fallback = logger.Named("audit.fallback")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &auditCommandService{
		store:    deps.Store,
		resolver: deps.Resolver,
		sink:     deps.Sink,
		fallback: deps.Fallback,
		metrics:  deps.Metrics,
		now:      deps.Clock,
		cfg:      cfg,
		queue:    make(chan *auditTask, cfg.QueueSize),
	}

	s.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.worker()
	}
	return s
}

// LogAsync records an event in the background. Context is captured before
// returning; validation errors are returned immediately.
func (s *auditCommandService) LogAsync(ctx context.Context, category models.EventCategory, entityType, entityID string, before, after any, reason string) (*Pending, error) {
	return s.LogAsyncEntry(ctx, Entry{
		Category:   category,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		Reason:     reason,
	})
}

// LogAsyncEntry is LogAsync for a full Entry.
func (s *auditCommandService) LogAsyncEntry(ctx context.Context, entry Entry) (*Pending, error) {
	d, err := s.newDraft(ctx, entry)
	if err != nil {
		return nil, err
	}

	task := &auditTask{ctx: context.WithoutCancel(ctx), draft: d, pending: newPending()}

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	if s.closed {
		s.divert(d, "closed", apperrors.ErrAuditServiceClosed)
		return nil, apperrors.ErrAuditServiceClosed
	}

	select {
	case s.queue <- task:
		s.metrics.SetQueueDepth(len(s.queue))
		return task.pending, nil
	default:
		s.divert(d, "queue_full", apperrors.ErrAuditQueueFull)
		return nil, apperrors.ErrAuditQueueFull
	}
}

// LogSync records an event before returning. The write runs in the store's
// own transaction and is not cancelled with ctx.
func (s *auditCommandService) LogSync(ctx context.Context, entry Entry) (string, error) {
	d, err := s.newDraft(ctx, entry)
	if err != nil {
		return "", err
	}
	return s.write(context.WithoutCancel(ctx), d, modeSync)
}

// LogSecurityEvent synchronously records a security incident that is not
// about a stored entity.
func (s *auditCommandService) LogSecurityEvent(ctx context.Context, category models.EventCategory, details string) (string, error) {
	return s.LogSync(ctx, Entry{
		Category:   category,
		EntityType: securityEntityType,
		EntityID:   uuid.NewSubjectID(),
		After:      map[string]string{"details": details},
		Reason:     models.Clamp(details, models.ReasonWidth),
	})
}

// LogExport synchronously records the start of a data export.
func (s *auditCommandService) LogExport(ctx context.Context, exportType string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	return s.LogSync(ctx, Entry{
		Category:   models.CategoryDataExportStarted,
		EntityType: exportEntityType,
		EntityID:   uuid.NewSubjectID(),
		After: map[string]any{
			"exportType": exportType,
			"parameters": params,
			"timestamp":  s.now().UTC().Format(time.RFC3339Nano),
		},
		Reason: "User initiated export: " + exportType,
		Source: models.SourceAPI,
	})
}

// Close stops accepting async work, drains the queue and waits for the
// workers and in-flight notifications, or for ctx to end.
func (s *auditCommandService) Close(ctx context.Context) error {
	s.stateMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		s.notifying.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *auditCommandService) worker() {
	defer s.workers.Done()
	for task := range s.queue {
		s.metrics.SetQueueDepth(len(s.queue))
		s.runTask(task)
	}
}

// runTask isolates one async write so that a panic fails only its task.
func (s *auditCommandService) runTask(task *auditTask) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("audit worker panic: %v", r)
			s.divert(task.draft, "panic", err)
			task.pending.resolve("", apperrors.Wrap(apperrors.ErrAuditWriteFailed, err))
		}
	}()

	id, err := s.write(task.ctx, task.draft, modeAsync)
	task.pending.resolve(id, err)
}

// write seals and persists d, then raises a notification when required.
func (s *auditCommandService) write(ctx context.Context, d *draft, mode string) (string, error) {
	start := time.Now()

	record, err := s.appendSerialized(ctx, d)

	s.metrics.ObserveWrite(mode, err, time.Since(start))
	if err != nil {
		s.divert(d, "write_failed", err)
		return "", apperrors.Wrap(apperrors.ErrAuditWriteFailed, err)
	}

	if record.Category.RequiresNotification() {
		s.escalate(ctx, record)
	}
	return record.ID, nil
}

func (s *auditCommandService) appendSerialized(ctx context.Context, d *draft) (*models.AuditRecord, error) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	return s.appendLocked(ctx, d)
}

// appendLocked retries on chain conflicts, reloading the head each time.
// Callers hold chainMu.
func (s *auditCommandService) appendLocked(ctx context.Context, d *draft) (*models.AuditRecord, error) {
	for attempt := 1; ; attempt++ {
		head, err := s.head(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load chain head: %w", err)
		}

		record := d.seal(head)
		err = s.store.Append(ctx, record)
		if err == nil {
			s.cache.Set(record.Link())
			return record, nil
		}

		s.cache.Invalidate()
		if !errors.Is(err, apperrors.ErrAuditChainConflict) || attempt >= maxAppendAttempts {
			return nil, err
		}
		s.metrics.IncChainConflict()
		logger.Get().Debugw("audit chain head moved, retrying append",
			"attempt", attempt,
			"sequence", record.Sequence,
		)
	}
}

func (s *auditCommandService) head(ctx context.Context) (models.ChainLink, error) {
	if link, ok := s.cache.Get(); ok {
		return link, nil
	}
	link, err := s.store.LastLink(ctx)
	if err != nil {
		return models.ChainLink{}, err
	}
	s.cache.Set(link)
	return link, nil
}

// escalate notifies the sink without blocking the writer.
func (s *auditCommandService) escalate(ctx context.Context, record *models.AuditRecord) {
	if s.sink == nil {
		return
	}
	event := notify.EventFor(record)

	s.notifying.Add(1)
	go func() {
		defer s.notifying.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
		defer cancel()

		err := s.sink.Notify(nctx, event)
		s.metrics.IncNotification(err)
		if err != nil {
			logger.Get().Errorw("failed to deliver audit escalation",
				"error", err,
				"record_id", event.RecordID,
				"category", event.Category,
			)
		}
	}()
}

// divert writes the full event to the fallback sink so it is not lost.
func (s *auditCommandService) divert(d *draft, reason string, cause error) {
	s.metrics.IncFallback(reason)
	s.fallback.Errorw("AUDIT_FALLBACK",
		"reason", reason,
		"error", cause,
		"record_id", d.id,
		"timestamp", d.occurredAt.Format(time.RFC3339Nano),
		"category", d.category,
		"entity_type", d.entityType,
		"entity_id", d.entityID,
		"actor_id", d.meta.Actor.ID,
		"actor_name", d.meta.Actor.Name,
		"actor_role", d.meta.Actor.Role,
		"source", d.source,
		"endpoint", d.meta.Endpoint,
		"request_id", d.meta.RequestID,
		"session_id", d.meta.SessionID,
		"client_address", d.meta.ClientAddress,
		"user_agent", d.meta.UserAgent,
		"change_reason", d.reason,
		"before", d.before,
		"after", d.after,
	)
}

// newDraft validates entry and captures the ambient context.
func (s *auditCommandService) newDraft(ctx context.Context, entry Entry) (*draft, error) {
	if !entry.Category.IsValid() {
		return nil, apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, fmt.Sprintf("Unknown event category %q", entry.Category))
	}
	entityType := strings.TrimSpace(entry.EntityType)
	if entityType == "" {
		return nil, apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, "Entity type is required")
	}
	entityID := strings.TrimSpace(entry.EntityID)
	if entityID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, "Entity id is required")
	}
	if utf8.RuneCountInString(entityType) > models.IdentifierWidth || utf8.RuneCountInString(entityID) > models.IdentifierWidth {
		return nil, apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, fmt.Sprintf("Entity type and id are limited to %d characters", models.IdentifierWidth))
	}
	if entry.Source != "" && !entry.Source.IsValid() {
		return nil, apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, fmt.Sprintf("Unknown source %q", entry.Source))
	}

	before, err := encodePayload(entry.Before)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, "Before payload is not serializable"), err)
	}
	after, err := encodePayload(entry.After)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.WithMessage(apperrors.ErrAuditInvalidEntry, "After payload is not serializable"), err)
	}

	meta := s.resolver.Capture(ctx)
	source := meta.Source
	if entry.Source != "" {
		source = entry.Source
	}

	regulated := isRegulated(entry.Category, entityType)
	return &draft{
		id:           uuid.New(),
		occurredAt:   s.now().UTC().Truncate(time.Millisecond),
		category:     entry.Category,
		entityType:   entityType,
		entityID:     entityID,
		before:       before,
		after:        after,
		reason:       models.Clamp(entry.Reason, models.ReasonWidth),
		comment:      models.Clamp(entry.Comment, models.CommentWidth),
		source:       source,
		meta:         meta,
		regulated:    regulated,
		retentionFor: s.retentionFor(entry.Category),
	}, nil
}

// retentionFor returns how long a record of category must be kept. Zero
// means no policy is stamped.
func (s *auditCommandService) retentionFor(category models.EventCategory) time.Duration {
	if s.cfg.Retention <= 0 {
		return 0
	}
	switch category {
	case models.CategoryDataDeleted, models.CategoryDataAnonymized, models.CategoryGDPRRequest:
		return max(s.cfg.Retention, regulationLongRetention)
	}
	return s.cfg.Retention
}

// regulatedEntityTypes hold personal data.
var regulatedEntityTypes = map[string]bool{
	"CUSTOMER": true,
	"CONTACT":  true,
}

func isRegulated(category models.EventCategory, entityType string) bool {
	return category.IsRegulated() || regulatedEntityTypes[strings.ToUpper(entityType)]
}

// encodePayload renders a before/after snapshot as JSON text. Strings and
// raw JSON are stored as given.
func encodePayload(v any) (string, error) {
	switch p := v.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "", nil
	}
	return string(data), nil
}
