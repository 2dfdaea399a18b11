package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dispense/internal/engine"
	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/requestid"
	"github.com/roach88/dispense/internal/testutil"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *testutil.MemoryStore
	channel *testutil.RecordingChannel
	audit   *testutil.RecordingAudit
	clock   *testutil.ManualClock
	engine  *engine.Engine
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds an engine over in-memory collaborators. Request ids
// come from a sequence: 0000-0001, 0000-0002, ...
func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   testutil.NewMemoryStore(),
		channel: testutil.NewRecordingChannel(nil),
		audit:   testutil.NewRecordingAudit(),
		clock:   testutil.NewManualClock(t0),
	}
	base := []engine.Option{
		engine.WithClock(f.clock),
		engine.WithRequestIDs(requestid.NewSequence()),
		engine.WithLogger(discardLogger()),
	}
	f.engine = engine.New(f.store, f.channel, f.audit, append(base, opts...)...)
	return f
}

// initiate runs Initiate and requires it to be accepted.
func (f *fixture) initiate(t *testing.T, subjectID string) string {
	t.Helper()
	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: subjectID})
	require.NoError(t, err)
	require.Equal(t, engine.StatusAccepted, res.Status)
	return res.RequestID
}

func (f *fixture) reconcile(subjectID, requestID string, result ir.Result) engine.Reconciliation {
	return f.engine.Reconcile(context.Background(), outcome(subjectID, requestID, result))
}

func (f *fixture) credits(t *testing.T, subjectID string) string {
	t.Helper()
	rec, ok := f.store.Record(subjectID)
	require.True(t, ok, "subject %s missing", subjectID)
	return rec.Credits.Text('f')
}

func (f *fixture) requests(t *testing.T, subjectID string) []ir.Request {
	t.Helper()
	rec, ok := f.store.Record(subjectID)
	require.True(t, ok, "subject %s missing", subjectID)
	return rec.Requests
}

func outcome(subjectID, requestID string, result ir.Result) ir.OutcomeEnvelope {
	return ir.OutcomeEnvelope{
		Topic:       ir.ShadowAcceptedTopic(subjectID),
		HasResponse: true,
		Outcome:     &ir.Outcome{RequestID: requestID, Result: result},
	}
}

func ops(calls []testutil.ChannelCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Op)
	}
	return out
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}
