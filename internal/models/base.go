package models

import (
	"time"

	"crmaudit/internal/uuid"

	"gorm.io/gorm"
)

// Base contains common columns for the bookkeeping tables. Audit records
// carry their own identity and are not built on Base.
type Base struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}
