package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dispense/internal/config"
	"github.com/roach88/dispense/internal/engine"
	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/testutil"
)

func TestInitiate_Accepted(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err)

	assert.Equal(t, engine.StatusAccepted, res.Status)
	assert.Equal(t, "0000-0001", res.RequestID)
	assert.Equal(t, "Dispenser d1 requested to be activated", res.Message)
	assert.Equal(t, "2.00", res.Credits)

	reqs := f.requests(t, "d1")
	require.Len(t, reqs, 1)
	assert.Equal(t, ir.Request{
		RequestID: "0000-0001",
		Command:   ir.CommandDispense,
		CreatedAt: t0,
		Target:    ir.DefaultTarget,
	}, reqs[0])
	assert.Equal(t, "2.00", f.credits(t, "d1"), "initiate never debits")

	cmds := f.channel.Commands("d1")
	require.Len(t, cmds, 1)
	assert.Equal(t, "dispense", cmds[0].Command)
	assert.Equal(t, "0000-0001", cmds[0].RequestID)
	assert.Equal(t, t0, cmds[0].At)

	assert.Equal(t, []string{
		"Dispense: Successful request to dispense initiated, requestId: 0000-0001",
	}, f.audit.Messages("d1"))
}

func TestInitiate_ExactlyMinimumIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "1.00")

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAccepted, res.Status)
}

func TestInitiate_RepeatWithinWindowIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	first := f.initiate(t, "d1")

	f.clock.Advance(4999 * time.Millisecond)
	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err)

	assert.Equal(t, engine.StatusAlreadyInProgress, res.Status)
	assert.Equal(t, first, res.RequestID)
	assert.Equal(t, "request 0000-0001 already in progress", res.Message)

	assert.Len(t, f.requests(t, "d1"), 1)
	assert.Len(t, f.channel.Commands("d1"), 1, "no second command")
	assert.Equal(t, 1, f.store.Puts(), "no second write")
	assert.Equal(t, "Dispense: ERROR: request 0000-0001 already in progress", f.audit.Messages("d1")[1])
}

func TestInitiate_StaleRequestIsSuperseded(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	f.initiate(t, "d1")

	// Age equal to the window counts as stale.
	f.clock.Advance(5 * time.Second)
	second := f.initiate(t, "d1")
	assert.Equal(t, "0000-0002", second)

	reqs := f.requests(t, "d1")
	require.Len(t, reqs, 1, "stale request replaced, not duplicated")
	assert.Equal(t, "0000-0002", reqs[0].RequestID)
	assert.Equal(t, t0.Add(5*time.Second), reqs[0].CreatedAt)
	assert.Len(t, f.channel.Commands("d1"), 2)
}

func TestInitiate_HonorsPolicyWindow(t *testing.T) {
	p := config.DefaultPolicy()
	p.StalenessWindow = time.Minute
	f := newFixture(t, engine.WithPolicy(p))
	f.store.Seed("d1", "2.00")
	f.initiate(t, "d1")

	f.clock.Advance(30 * time.Second)
	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAlreadyInProgress, res.Status)
}

func TestInitiate_InsufficientCredits(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "0.50")

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err, "declining is not an error")

	want := "dispenser: d1 only has $0.50 credits, at least $1.00 required to activate dispenser"
	assert.Equal(t, engine.StatusDeclined, res.Status)
	assert.Equal(t, want, res.Message)
	assert.Equal(t, "0.50", res.Credits)
	assert.Empty(t, res.RequestID)

	assert.Equal(t, 0, f.store.Puts())
	assert.Empty(t, f.channel.Calls())
	assert.Equal(t, []string{"Dispense: ERROR: " + want}, f.audit.Messages("d1"))
}

func TestInitiate_NotFound(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "ghost"})
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
	assert.Equal(t, engine.StatusNotFound, res.Status)
	assert.Equal(t, "dispenser ghost not found", res.Message)
	assert.Empty(t, f.channel.Calls())
}

func TestInitiate_Malformed(t *testing.T) {
	tests := []struct {
		name string
		req  ir.InitiateRequest
	}{
		{"missing subject", ir.InitiateRequest{}},
		{"blank subject", ir.InitiateRequest{SubjectID: "  "}},
		{"other subject", ir.InitiateRequest{SubjectID: "d1", RequestedSubject: "d2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.Seed("d1", "2.00")

			res, err := f.engine.Initiate(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, engine.IsMalformed(err))
			assert.True(t, errors.Is(err, ir.ErrMalformed))
			assert.Equal(t, engine.StatusMalformed, res.Status)
			assert.Equal(t, 0, f.store.Puts())
		})
	}
}

func TestInitiate_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	f.store.GetErr = errors.New("disk on fire")

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.Error(t, err)
	assert.True(t, engine.IsTransport(err))
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Empty(t, f.channel.Calls())
}

func TestInitiate_ConflictIsRetried(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	f.store.InterleaveWrite(func(rec *ir.Record) {})

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAccepted, res.Status)
	assert.Equal(t, 2, f.store.Puts())
	assert.Len(t, f.channel.Commands("d1"), 1)
}

func TestInitiate_ConcurrentInitiatorWins(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	f.store.InterleaveWrite(func(rec *ir.Record) {
		rec.Requests = append(rec.Requests, ir.Request{
			RequestID: "9999-9999",
			Command:   ir.CommandDispense,
			CreatedAt: t0,
			Target:    ir.DefaultTarget,
		})
	})

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAlreadyInProgress, res.Status)
	assert.Equal(t, "9999-9999", res.RequestID)

	reqs := f.requests(t, "d1")
	require.Len(t, reqs, 1)
	assert.Equal(t, "9999-9999", reqs[0].RequestID)
	assert.Empty(t, f.channel.Commands("d1"), "loser sends nothing")
}

func TestInitiate_ConflictsExhaustAttempts(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	for i := 0; i < 3; i++ {
		f.store.InterleaveWrite(func(rec *ir.Record) {})
	}

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.Error(t, err)
	assert.True(t, engine.IsTransport(err))
	assert.True(t, engine.IsAttemptsExhausted(err))
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Equal(t, 3, f.store.Puts())
	assert.Empty(t, f.channel.Commands("d1"))
}

func TestInitiate_WithMaxAttemptsOne(t *testing.T) {
	f := newFixture(t, engine.WithMaxAttempts(1))
	f.store.Seed("d1", "2.00")
	f.store.InterleaveWrite(func(rec *ir.Record) {})

	_, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.Error(t, err)
	assert.True(t, engine.IsAttemptsExhausted(err))
	assert.Equal(t, 1, f.store.Puts())
}

func TestInitiate_SendFailureKeepsRequest(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	f.channel.Fail[testutil.OpSendCommand] = errors.New("broker down")

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.Error(t, err)
	assert.True(t, engine.IsTransport(err))
	assert.Equal(t, engine.StatusFailed, res.Status)

	// The recorded request blocks retries until it goes stale.
	assert.Len(t, f.requests(t, "d1"), 1)
	assert.Empty(t, f.audit.Messages("d1"))
}

func TestInitiate_AuditFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	f.audit.Err = errors.New("audit table locked")

	res, err := f.engine.Initiate(context.Background(), ir.InitiateRequest{SubjectID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAccepted, res.Status)
	assert.Len(t, f.channel.Commands("d1"), 1)
}

func TestInitiate_SubjectsAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("d1", "2.00")
	f.store.Seed("d2", "2.00")

	f.initiate(t, "d1")
	f.initiate(t, "d2")

	assert.Len(t, f.requests(t, "d1"), 1)
	assert.Len(t, f.requests(t, "d2"), 1)
}
