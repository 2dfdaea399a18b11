package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/store"
)

// MemoryStore is an in-memory record store with the same conditional-write
// semantics as the SQLite store, plus failure injection.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]ir.Record

	// GetErr and PutErr, when set, are returned by every Get / Put.
	GetErr error
	PutErr error

	interleave []func(*ir.Record)
	puts       int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]ir.Record)}
}

// Seed stores a subject with the given balance at version 1.
func (m *MemoryStore) Seed(subjectID, credits string, requests ...ir.Request) {
	d, _, err := apd.NewFromString(credits)
	if err != nil {
		panic(fmt.Sprintf("testutil.MemoryStore.Seed: %v", err))
	}
	rec := ir.Record{SubjectID: subjectID, Requests: requests, Version: 1}
	rec.Credits.Set(d)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[subjectID] = clone(rec)
}

// InterleaveWrite makes a concurrent writer win the race against the next
// Put: before that Put is checked, mutate is applied to the stored record
// and its version is bumped. Calls queue up, one per Put.
func (m *MemoryStore) InterleaveWrite(mutate func(rec *ir.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interleave = append(m.interleave, mutate)
}

// Get implements engine.RecordStore.
func (m *MemoryStore) Get(_ context.Context, subjectID string) (ir.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return ir.Record{}, m.GetErr
	}
	rec, ok := m.records[subjectID]
	if !ok {
		return ir.Record{}, fmt.Errorf("get %s: %w", subjectID, store.ErrNotFound)
	}
	return clone(rec), nil
}

// Put implements engine.RecordStore.
func (m *MemoryStore) Put(_ context.Context, rec ir.Record) (ir.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.PutErr != nil {
		return ir.Record{}, m.PutErr
	}

	current, exists := m.records[rec.SubjectID]
	if len(m.interleave) > 0 && exists {
		mutate := m.interleave[0]
		m.interleave = m.interleave[1:]
		mutate(&current)
		current.Version++
		m.records[rec.SubjectID] = clone(current)
	}

	switch {
	case rec.Version == 0 && exists,
		rec.Version != 0 && (!exists || current.Version != rec.Version):
		return ir.Record{}, fmt.Errorf("put %s at version %d: %w", rec.SubjectID, rec.Version, store.ErrConflict)
	}

	stored := clone(rec)
	stored.Version = rec.Version + 1
	m.records[rec.SubjectID] = stored
	return clone(stored), nil
}

// Record returns a copy of the stored record.
func (m *MemoryStore) Record(subjectID string) (ir.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[subjectID]
	return clone(rec), ok
}

// Puts returns how many Put calls were made.
func (m *MemoryStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func clone(rec ir.Record) ir.Record {
	out := ir.Record{
		SubjectID: rec.SubjectID,
		Version:   rec.Version,
	}
	out.Credits.Set(&rec.Credits)
	if rec.Requests != nil {
		out.Requests = append([]ir.Request(nil), rec.Requests...)
	}
	return out
}
