package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"crmaudit/internal/hashchain"
	"crmaudit/internal/models"
	"crmaudit/internal/uuid"

	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// BaseTime is a fixed, millisecond-aligned instant for deterministic chains.
var BaseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewSealedRecord builds a record that follows prev, with a valid
// fingerprint. It is not persisted.
func NewSealedRecord(prev models.ChainLink, ts time.Time, category models.EventCategory) *models.AuditRecord {
	n := nextID()
	record := &models.AuditRecord{
		ID:            uuid.New(),
		Sequence:      prev.Sequence + 1,
		Timestamp:     ts.UTC().Truncate(time.Millisecond),
		Category:      category,
		EntityType:    "CUSTOMER",
		EntityID:      fmt.Sprintf("customer-%d", n),
		ActorID:       "user-1",
		ActorName:     "Test User",
		ActorRole:     "admin",
		Source:        models.SourceAPI,
		After:         fmt.Sprintf(`{"n":%d}`, n),
		ClientAddress: "10.0.0.1",
		UserAgent:     "testutil",
		PreviousLink:  prev.Fingerprint,
		SchemaVersion: models.CurrentSchemaVersion,
	}
	if prev.IsGenesis() {
		record.PreviousLink = hashchain.Genesis
	}
	record.Fingerprint = hashchain.Recompute(record)
	return record
}

// CreateTestChain persists n valid, chained records spaced one minute apart
// starting at start.
func CreateTestChain(t *testing.T, db *gorm.DB, n int, start time.Time) []models.AuditRecord {
	t.Helper()

	records := make([]models.AuditRecord, 0, n)
	prev := models.ChainLink{Fingerprint: hashchain.Genesis}
	for i := 0; i < n; i++ {
		r := NewSealedRecord(prev, start.Add(time.Duration(i)*time.Minute), models.CategoryCustomerUpdated)
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("failed to create test audit record: %v", err)
		}
		records = append(records, *r)
		prev = r.Link()
	}
	return records
}

// TamperRecord overwrites stored columns of a record behind the model's
// immutability hook, the way an attacker with database access would.
func TamperRecord(t *testing.T, db *gorm.DB, id string, columns map[string]interface{}) {
	t.Helper()

	if err := db.Table("audit_trail").Where("id = ?", id).UpdateColumns(columns).Error; err != nil {
		t.Fatalf("failed to tamper with audit record: %v", err)
	}
}
