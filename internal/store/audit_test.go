package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dispense/internal/ir"
)

func TestAppendAndListAudit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	entries := []ir.AuditEntry{
		{ID: "a2", SubjectID: "d1", Timestamp: t0.Add(500 * time.Millisecond), Message: "second"},
		{ID: "a1", SubjectID: "d1", Timestamp: t0, Message: "first"},
		{ID: "a3", SubjectID: "d1", Timestamp: t0.Add(2 * time.Second), Message: "third"},
		{ID: "b1", SubjectID: "d2", Timestamp: t0, Message: "other subject"},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	got, err := s.ListAudit(ctx, "d1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, messages(got))
	assert.True(t, got[1].Timestamp.Equal(t0.Add(500*time.Millisecond)))
}

func TestListAudit_LimitKeepsMostRecent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendAudit(ctx, ir.AuditEntry{
			ID:        fmt.Sprintf("a%d", i),
			SubjectID: "d1",
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("m%d", i),
		}))
	}

	got, err := s.ListAudit(ctx, "d1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4"}, messages(got))
}

func TestAppendAudit_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := ir.AuditEntry{ID: "a1", SubjectID: "d1", Timestamp: t0, Message: "once"}
	require.NoError(t, s.AppendAudit(ctx, e))
	require.NoError(t, s.AppendAudit(ctx, e))

	got, err := s.ListAudit(ctx, "d1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func messages(entries []ir.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
