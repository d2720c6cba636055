package testutil

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	apperrors "crmaudit/internal/errors"
	"crmaudit/internal/hashchain"
	"crmaudit/internal/models"
)

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertChainIntact loads every stored record in sequence order and fails
// the test unless they form one unbroken chain from genesis.
func AssertChainIntact(t *testing.T, db *gorm.DB) []models.AuditRecord {
	t.Helper()

	var records []models.AuditRecord
	if err := db.Order("sequence ASC").Find(&records).Error; err != nil {
		t.Fatalf("failed to load audit records: %v", err)
	}
	if findings := hashchain.VerifyRecords(hashchain.Genesis, records); len(findings) != 0 {
		t.Fatalf("expected an intact chain of %d records, got %d findings: %v", len(records), len(findings), findings)
	}
	return records
}
