package hashchain

import (
	"fmt"

	"crmaudit/internal/models"
)

// FindingKind classifies an integrity finding.
type FindingKind string

const (
	// FindingLinkMismatch means the record's previous-link differs from the
	// fingerprint of the record before it.
	FindingLinkMismatch FindingKind = "link_mismatch"
	// FindingFingerprintMismatch means the stored fingerprint cannot be
	// reproduced from the stored fields.
	FindingFingerprintMismatch FindingKind = "fingerprint_mismatch"
	// FindingUnexplainedGap means records before the first stored record are
	// gone although no retention purge was recorded.
	FindingUnexplainedGap FindingKind = "unexplained_gap"
)

// Finding describes one discrepancy discovered while walking the chain.
type Finding struct {
	RecordID    string      `json:"record_id"`
	Sequence    int64       `json:"sequence"`
	Kind        FindingKind `json:"kind"`
	Description string      `json:"description"`
	Expected    string      `json:"expected"`
	Actual      string      `json:"actual"`
}

// Verifier walks records in chain order. Records are fed one at a time so a
// window can be verified in batches without loading it into memory.
type Verifier struct {
	expected string
	anchored bool
	checked  int64
	findings []Finding
}

// NewVerifier starts a walk expecting the first record to link to
// expectedFirst. An empty expectedFirst anchors the walk on the first record
// instead, which is used when the window's predecessor is unknown.
func NewVerifier(expectedFirst string) *Verifier {
	return &Verifier{expected: expectedFirst, anchored: expectedFirst != ""}
}

// Check verifies the next record of the walk.
func (v *Verifier) Check(r *models.AuditRecord) {
	v.checked++

	if v.anchored && r.PreviousLink != v.expected {
		v.findings = append(v.findings, Finding{
			RecordID:    r.ID,
			Sequence:    r.Sequence,
			Kind:        FindingLinkMismatch,
			Description: fmt.Sprintf("record %d does not link to its predecessor", r.Sequence),
			Expected:    v.expected,
			Actual:      r.PreviousLink,
		})
	}

	if recomputed := Recompute(r); recomputed != r.Fingerprint {
		v.findings = append(v.findings, Finding{
			RecordID:    r.ID,
			Sequence:    r.Sequence,
			Kind:        FindingFingerprintMismatch,
			Description: fmt.Sprintf("record %d fingerprint does not match its content", r.Sequence),
			Expected:    recomputed,
			Actual:      r.Fingerprint,
		})
	}

	v.expected = r.Fingerprint
	v.anchored = true
}

// Report adds a finding discovered outside the link and fingerprint checks.
func (v *Verifier) Report(f Finding) {
	v.findings = append(v.findings, f)
}

// Checked returns the number of records seen.
func (v *Verifier) Checked() int64 { return v.checked }

// Findings returns the discrepancies found so far.
func (v *Verifier) Findings() []Finding {
	if v.findings == nil {
		return []Finding{}
	}
	return v.findings
}

// Valid reports whether the walk found no discrepancies.
func (v *Verifier) Valid() bool { return len(v.findings) == 0 }

// VerifyRecords walks an in-memory, chain-ordered slice.
func VerifyRecords(expectedFirst string, records []models.AuditRecord) []Finding {
	v := NewVerifier(expectedFirst)
	for i := range records {
		v.Check(&records[i])
	}
	return v.Findings()
}
