package models

import (
	"time"

	apperrors "crmaudit/internal/errors"

	"gorm.io/gorm"
)

// CurrentSchemaVersion is stamped on every new audit record.
const CurrentSchemaVersion = 1

// Column widths of the audit_trail text columns, in characters.
const (
	IdentifierWidth = 100
	ActorNameWidth  = 255
	ActorRoleWidth  = 50
	ReasonWidth     = 500
	CommentWidth    = 1000
	EndpointWidth   = 500
	UserAgentWidth  = 500
)

// Clamp shortens s to at most width characters without splitting a rune.
func Clamp(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(s) <= width {
		return s
	}
	n := 0
	for i := range s {
		if n == width {
			return s[:i]
		}
		n++
	}
	return s
}

// AuditRecord is one immutable, chained entry of the audit trail.
// Records are only ever inserted; updates are rejected by BeforeUpdate and
// deletion happens exclusively through the retention purge.
type AuditRecord struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence  int64     `gorm:"not null;uniqueIndex" json:"sequence"`
	Timestamp time.Time `gorm:"column:occurred_at;not null;index:idx_audit_trail_occurred_at" json:"timestamp"`

	Category   EventCategory `gorm:"size:50;not null;index" json:"category"`
	EntityType string        `gorm:"size:100;not null;index:idx_audit_trail_entity,priority:1" json:"entity_type"`
	EntityID   string        `gorm:"size:100;not null;index:idx_audit_trail_entity,priority:2" json:"entity_id"`

	ActorID   string `gorm:"size:100;not null;index" json:"actor_id"`
	ActorName string `gorm:"size:255" json:"actor_name"`
	ActorRole string `gorm:"size:50" json:"actor_role"`

	ChangeReason string `gorm:"size:500" json:"change_reason,omitempty"`
	UserComment  string `gorm:"size:1000" json:"user_comment,omitempty"`

	Source    AuditSource `gorm:"size:20;not null;index" json:"source"`
	Endpoint  string      `gorm:"size:500" json:"endpoint,omitempty"`
	RequestID string      `gorm:"size:100" json:"request_id,omitempty"`
	SessionID string      `gorm:"size:100" json:"session_id,omitempty"`

	Before string `gorm:"column:before_state;type:text" json:"before,omitempty"`
	After  string `gorm:"column:after_state;type:text" json:"after,omitempty"`

	ClientAddress string `gorm:"size:100" json:"client_address"`
	UserAgent     string `gorm:"size:500" json:"user_agent"`

	RegulationRelevant bool       `gorm:"not null;default:false;index" json:"regulation_relevant"`
	RetentionUntil     *time.Time `gorm:"index" json:"retention_until,omitempty"`

	PreviousLink  string `gorm:"size:64;not null" json:"previous_link"`
	Fingerprint   string `gorm:"size:64;not null" json:"fingerprint"`
	SchemaVersion int    `gorm:"not null;default:1" json:"schema_version"`
}

// TableName pins the table name used by migrations.
func (AuditRecord) TableName() string { return "audit_trail" }

// BeforeUpdate rejects any attempt to modify a persisted record.
func (r *AuditRecord) BeforeUpdate(tx *gorm.DB) error {
	return apperrors.ErrAuditRecordMutation
}

// Link returns the chain link this record contributes.
func (r *AuditRecord) Link() ChainLink {
	return ChainLink{Sequence: r.Sequence, Fingerprint: r.Fingerprint, Timestamp: r.Timestamp}
}

// ChainLink is the position of a record in the global chain.
type ChainLink struct {
	Sequence    int64     `json:"sequence"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsGenesis reports whether l is the position before the first record.
func (l ChainLink) IsGenesis() bool { return l.Sequence == 0 }
