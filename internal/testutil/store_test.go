package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/store"
)

func TestMemoryStore_GetNotFound(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_ConditionalPut(t *testing.T) {
	m := NewMemoryStore()
	m.Seed("d1", "2.00")
	ctx := context.Background()

	rec, err := m.Get(ctx, "d1")
	require.NoError(t, err)

	out, err := m.Put(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Version)

	_, err = m.Put(ctx, rec)
	require.ErrorIs(t, err, store.ErrConflict, "stale version")

	_, err = m.Put(ctx, ir.Record{SubjectID: "d1"})
	require.ErrorIs(t, err, store.ErrConflict, "insert over existing")

	_, err = m.Put(ctx, ir.Record{SubjectID: "d2"})
	require.NoError(t, err)
	assert.Equal(t, 4, m.Puts())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	m := NewMemoryStore()
	m.Seed("d1", "2.00", ir.Request{RequestID: "0001-0001", Command: ir.CommandDispense})

	rec, err := m.Get(context.Background(), "d1")
	require.NoError(t, err)
	rec.Requests[0].RequestID = "mutated"

	stored, _ := m.Record("d1")
	assert.Equal(t, "0001-0001", stored.Requests[0].RequestID)
}

func TestMemoryStore_InterleaveWrite(t *testing.T) {
	m := NewMemoryStore()
	m.Seed("d1", "2.00")
	ctx := context.Background()

	m.InterleaveWrite(func(rec *ir.Record) {
		rec.Requests = append(rec.Requests, ir.Request{RequestID: "9999-9999", Command: ir.CommandDispense})
	})

	rec, err := m.Get(ctx, "d1")
	require.NoError(t, err)
	_, err = m.Put(ctx, rec)
	require.ErrorIs(t, err, store.ErrConflict)

	reloaded, err := m.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.Version)
	require.Len(t, reloaded.Requests, 1)

	_, err = m.Put(ctx, reloaded)
	require.NoError(t, err, "interleave applies to one Put only")
}
