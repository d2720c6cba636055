package models

import "time"

// VerificationStatus is the outcome of a chain verification.
type VerificationStatus string

const (
	VerificationValid       VerificationStatus = "valid"
	VerificationCompromised VerificationStatus = "compromised"
)

// VerificationRun records the result of a scheduled chain verification.
// It is bookkeeping and not part of the chain.
type VerificationRun struct {
	Base
	WindowFrom     time.Time          `gorm:"not null" json:"window_from"`
	WindowTo       time.Time          `gorm:"not null" json:"window_to"`
	RecordsChecked int64              `gorm:"not null" json:"records_checked"`
	FindingCount   int                `gorm:"not null" json:"finding_count"`
	Status         VerificationStatus `gorm:"size:20;not null" json:"status"`
	VerifiedAt     time.Time          `gorm:"not null;index" json:"verified_at"`
}

// TableName pins the table name used by migrations.
func (VerificationRun) TableName() string { return "audit_verification_runs" }
