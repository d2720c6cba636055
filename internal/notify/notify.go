// Package notify delivers escalations for audit events that require
// operator attention.
package notify

import (
	"context"
	"errors"
	"time"

	"crmaudit/internal/models"

	"go.uber.org/zap"
)

// Severity of an escalation.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Event is the escalation payload for one persisted audit record.
type Event struct {
	RecordID   string               `json:"record_id"`
	Category   models.EventCategory `json:"category"`
	Severity   Severity             `json:"severity"`
	EntityType string               `json:"entity_type"`
	EntityID   string               `json:"entity_id"`
	ActorID    string               `json:"actor_id"`
	ActorName  string               `json:"actor_name,omitempty"`
	Address    string               `json:"client_address,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// EventFor builds the escalation for r.
func EventFor(r *models.AuditRecord) Event {
	return Event{
		RecordID:   r.ID,
		Category:   r.Category,
		Severity:   SeverityFor(r.Category),
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		ActorID:    r.ActorID,
		ActorName:  r.ActorName,
		Address:    r.ClientAddress,
		Reason:     r.ChangeReason,
		Timestamp:  r.Timestamp,
	}
}

// SeverityFor grades a category. Security incidents and critical errors are
// critical, every other notification is a warning.
func SeverityFor(c models.EventCategory) Severity {
	f := c.Facets()
	if c == models.CategoryCriticalError || (f.Security && f.Notify && !f.Failure) {
		return SeverityCritical
	}
	return SeverityWarning
}

// Sink receives escalations.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// LogSink writes escalations to a zap logger.
type LogSink struct {
	log *zap.SugaredLogger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *zap.SugaredLogger) *LogSink {
	return &LogSink{log: log}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, e Event) error {
	s.log.Warnw("audit escalation",
		"record_id", e.RecordID,
		"category", e.Category,
		"severity", e.Severity,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"actor_id", e.ActorID,
		"client_address", e.Address,
	)
	return nil
}

// Multi fans an escalation out to every sink. All sinks are attempted; the
// joined error reports each failure.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
