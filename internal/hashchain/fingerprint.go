// Package hashchain computes and verifies the fingerprints that link audit
// records into a single tamper-evident chain.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"crmaudit/internal/models"
)

// Genesis is the previous-link of the very first record.
const Genesis = "GENESIS"

// Input is the chain-relevant content of a record. Request metadata such as
// client address or user agent is deliberately absent so it can evolve
// without invalidating older fingerprints.
type Input struct {
	Timestamp  time.Time
	Category   models.EventCategory
	EntityType string
	EntityID   string
	ActorID    string
	Before     string
	After      string
}

// InputOf extracts the fingerprint input from a stored record.
func InputOf(r *models.AuditRecord) Input {
	return Input{
		Timestamp:  r.Timestamp,
		Category:   r.Category,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		ActorID:    r.ActorID,
		Before:     r.Before,
		After:      r.After,
	}
}

// Fingerprint returns the lowercase hex SHA-256 of the input fields followed
// by previousLink. It has no side effects.
func Fingerprint(in Input, previousLink string) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(in.Timestamp.UnixMilli(), 10)))
	h.Write([]byte(in.Category))
	h.Write([]byte(in.EntityType))
	h.Write([]byte(in.EntityID))
	h.Write([]byte(in.ActorID))
	h.Write([]byte(in.Before))
	h.Write([]byte(in.After))
	h.Write([]byte(previousLink))
	return hex.EncodeToString(h.Sum(nil))
}

// Recompute returns the fingerprint r should carry given its stored fields.
func Recompute(r *models.AuditRecord) string {
	return Fingerprint(InputOf(r), r.PreviousLink)
}

// knownAnswer is SHA-256("") and pins the digest implementation.
const knownAnswer = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// SelfTest checks that the digest is available and deterministic. A failure
// is fatal at startup.
func SelfTest() error {
	sum := sha256.Sum256(nil)
	if got := hex.EncodeToString(sum[:]); got != knownAnswer {
		return fmt.Errorf("sha256 known-answer mismatch: got %s", got)
	}

	in := Input{
		Timestamp:  time.UnixMilli(1700000000000).UTC(),
		Category:   models.CategorySystemStartup,
		EntityType: "SYSTEM",
		EntityID:   "self-test",
		ActorID:    "SYSTEM",
	}
	first, second := Fingerprint(in, Genesis), Fingerprint(in, Genesis)
	if first != second {
		return fmt.Errorf("fingerprint is not deterministic")
	}
	if len(first) != sha256.Size*2 {
		return fmt.Errorf("fingerprint has length %d, want %d", len(first), sha256.Size*2)
	}
	return nil
}
