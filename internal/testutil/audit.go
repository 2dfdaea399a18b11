package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/dispense/internal/ir"
)

// RecordingAudit is an in-memory audit log.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingAudit struct {
	// Err, when set, is returned by Append after the entry is dropped.
	Err error

	mu      sync.Mutex
	entries []ir.AuditEntry
}

// NewRecordingAudit creates an empty audit recorder.
func NewRecordingAudit() *RecordingAudit {
	return &RecordingAudit{}
}

// Append implements engine.AuditLog.
func (a *RecordingAudit) Append(_ context.Context, subjectID string, at time.Time, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.entries = append(a.entries, ir.AuditEntry{
		ID:        fmt.Sprintf("audit-%04d", len(a.entries)+1),
		SubjectID: subjectID,
		Timestamp: at,
		Message:   message,
	})
	return nil
}

// Entries returns a copy of the recorded entries.
func (a *RecordingAudit) Entries() []ir.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ir.AuditEntry(nil), a.entries...)
}

// Messages returns the messages recorded for subjectID, in order.
func (a *RecordingAudit) Messages(subjectID string) []string {
	var out []string
	for _, e := range a.Entries() {
		if e.SubjectID == subjectID {
			out = append(out, e.Message)
		}
	}
	return out
}
