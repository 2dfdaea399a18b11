package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
)

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "d1", dec(t, "2.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.SubjectID)
	assert.Equal(t, "2.00", got.Credits.Text('f'), "scale preserved")
	assert.Empty(t, got.Requests)
	assert.Equal(t, int64(1), got.Version)
}

func TestCreate_Duplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "d1", dec(t, "1.00"))
	require.NoError(t, err)

	_, err = s.Create(ctx, "d1", dec(t, "5.00"))
	require.ErrorIs(t, err, ErrExists)
}

func TestCreate_Rejects(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Create(context.Background(), "", dec(t, "1.00"))
	require.Error(t, err)

	_, err = s.Create(context.Background(), "d1", dec(t, "-1.00"))
	require.ErrorIs(t, err, ledger.ErrNegativeAmount)
}

func TestPut_RoundTripsRequests(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "d1", dec(t, "2.00"))
	require.NoError(t, err)

	rec.Requests = []ir.Request{testRequest("0042-1337")}
	updated, err := s.Put(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got.Requests, 1)
	assert.Equal(t, testRequest("0042-1337"), got.Requests[0])
}

func TestPut_StaleVersionConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "d1", dec(t, "2.00"))
	require.NoError(t, err)

	// Two invocations load the same version.
	a, b := rec, rec
	a.Requests = []ir.Request{testRequest("0001-0001")}
	b.Requests = []ir.Request{testRequest("0002-0002")}

	_, err = s.Put(ctx, a)
	require.NoError(t, err)

	_, err = s.Put(ctx, b)
	require.ErrorIs(t, err, ErrConflict)

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got.Requests, 1)
	assert.Equal(t, "0001-0001", got.Requests[0].RequestID, "loser must not overwrite")
}

func TestPut_ExactDecimal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "d1", dec(t, "2.00"))
	require.NoError(t, err)

	next, err := ledger.New().Decrement(&rec.Credits, dec(t, "1.00"))
	require.NoError(t, err)
	rec.Credits.Set(next)
	_, err = s.Put(ctx, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "1.00", got.Credits.Text('f'))
}

func TestAddCredits(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "d1", dec(t, "0.50"))
	require.NoError(t, err)

	got, err := s.AddCredits(ctx, "d1", dec(t, "1.25"))
	require.NoError(t, err)
	assert.Equal(t, "1.75", got.Credits.Text('f'))
	assert.Equal(t, int64(2), got.Version)

	_, err = s.AddCredits(ctx, "missing", dec(t, "1.00"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.AddCredits(ctx, "d1", dec(t, "-1.00"))
	require.ErrorIs(t, err, ledger.ErrNegativeAmount)
}

func TestAddCredits_ConcurrentTopUpsAllLand(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "d1", dec(t, "0.00"))
	require.NoError(t, err)

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddCredits(ctx, "d1", dec(t, "1.00"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Credits.Cmp(dec(t, "4")), "got %s", got.Credits.Text('f'))
}

func TestListSubjects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"d2", "d1", "d3"} {
		_, err := s.Create(ctx, id, dec(t, "1.00"))
		require.NoError(t, err)
	}

	got, err := s.ListSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "d1", got[0].SubjectID)
	assert.Equal(t, "d2", got[1].SubjectID)
	assert.Equal(t, "d3", got[2].SubjectID)
}
