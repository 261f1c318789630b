package engine

import (
	"sync"

	"github.com/verascope-ai/verascope/pkg/models"
)

// Log is the append-only in-memory record of every call in a session.
// One goroutine appends while others read concurrently; all accessors
// return copies so readers never observe a half-updated record.
type Log struct {
	mu      sync.RWMutex
	records []models.CallRecord
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a record. Records are never removed or reordered.
func (l *Log) Append(rec models.CallRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Get returns a copy of the record with the given id.
func (l *Log) Get(id string) (models.CallRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.records {
		if l.records[i].ID == id {
			return copyRecord(l.records[i]), true
		}
	}
	return models.CallRecord{}, false
}

// UpdateVerification sets the verification outcome on a record.
// Last write wins; no history of prior attempts is kept.
func (l *Log) UpdateVerification(id string, match bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID == id {
			m := match
			l.records[i].Verified = true
			l.records[i].VerificationMatch = &m
			return true
		}
	}
	return false
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Summaries returns the listing view of all records, in creation order.
// Raw payloads are never included; fingerprints are truncated for display.
func (l *Log) Summaries() []models.CallSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.CallSummary, 0, len(l.records))
	for i := range l.records {
		r := &l.records[i]
		out = append(out, models.CallSummary{
			ID:                r.ID,
			Label:             r.Label,
			Action:            r.Action,
			InputFingerprint:  ShortFingerprint(r.InputFingerprint),
			OutputFingerprint: ShortFingerprint(r.OutputFingerprint),
			OutputPreview:     r.OutputPreview,
			CreatedAt:         r.CreatedAt,
			Verified:          r.Verified,
			VerificationMatch: copyBool(r.VerificationMatch),
		})
	}
	return out
}

// Export returns complete copies of all records for offline audit.
func (l *Log) Export() []models.CallRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.CallRecord, 0, len(l.records))
	for i := range l.records {
		out = append(out, copyRecord(l.records[i]))
	}
	return out
}

func copyRecord(r models.CallRecord) models.CallRecord {
	r.VerificationMatch = copyBool(r.VerificationMatch)
	return r
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
