package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one extraction attempt for traceability: what the model
// emitted, what was parsed out of it, and the record state before the merge.
type AuditEntry struct {
	ID             uuid.UUID
	Timestamp      time.Time
	RawOutput      string
	Parsed         *Record
	SnapshotBefore Record
}

// NewAuditEntry builds an entry for raw model output, capturing before as the
// pre-merge snapshot.
func NewAuditEntry(raw string, parsed *Record, before Record) AuditEntry {
	return AuditEntry{
		ID:             uuid.New(),
		Timestamp:      time.Now().UTC(),
		RawOutput:      raw,
		Parsed:         parsed,
		SnapshotBefore: before,
	}
}
