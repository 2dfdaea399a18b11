package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/dispense/internal/ir"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func testRequest(id string) ir.Request {
	return ir.Request{
		RequestID: id,
		Command:   ir.CommandDispense,
		CreatedAt: t0,
		Target:    ir.DefaultTarget,
	}
}
