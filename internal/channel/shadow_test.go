package channel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/signal"
	"github.com/roach88/dispense/internal/store"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newShadow(t *testing.T) (*Shadow, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, WithNow(func() time.Time { return t0 })), s
}

func TestSendAndClearCommand(t *testing.T) {
	ch, _ := newShadow(t)
	ctx := context.Background()

	require.NoError(t, ch.SendCommand(ctx, "d1", "dispense", "0042-1337", t0))

	command, requestID, ok, err := ch.PendingCommand(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dispense", command)
	assert.Equal(t, "0042-1337", requestID)

	require.NoError(t, ch.ClearCommand(ctx, "d1"))
	_, _, ok, err = ch.PendingCommand(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetOutputSignal_RoundTrip(t *testing.T) {
	ch, s := newShadow(t)
	ctx := context.Background()

	_, ok, err := ch.OutputSignal(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	want := signal.Signal{Count: 1, Color: signal.ColorTier1}
	require.NoError(t, ch.SetOutputSignal(ctx, "d1", want))

	got, ok, err := ch.OutputSignal(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	sh, err := s.GetShadow(ctx, "d1")
	require.NoError(t, err)
	ring := sh.Desired[KeyLEDRing].(map[string]any)
	assert.Equal(t, "#006600", ring["color"])
}

func TestReportThenClear(t *testing.T) {
	ch, s := newShadow(t)
	ctx := context.Background()

	env, err := ch.Report(ctx, "d1", ir.Outcome{RequestID: "0042-1337", Result: ir.ResultSuccess})
	require.NoError(t, err)
	assert.Equal(t, "$aws/things/d1/shadow/update/accepted", env.Topic)
	assert.True(t, env.HasResponse)
	require.NotNil(t, env.Outcome)
	assert.Equal(t, ir.Outcome{RequestID: "0042-1337", Result: ir.ResultSuccess}, *env.Outcome)
	subject, err := env.Subject()
	require.NoError(t, err)
	assert.Equal(t, "d1", subject)

	assert.Empty(t, ch.Drain(), "reports are returned, not queued")

	require.NoError(t, ch.ClearOutcome(ctx, "d1"))
	queued := ch.Drain()
	require.Len(t, queued, 1)
	assert.True(t, queued[0].Empty(), "clearing write carries no outcome")
	assert.True(t, queued[0].HasResponse)
	assert.Empty(t, ch.Drain())

	sh, err := s.GetShadow(ctx, "d1")
	require.NoError(t, err)
	assert.NotContains(t, sh.Reported, KeyResponse)
}

func TestPublish(t *testing.T) {
	ch, s := newShadow(t)
	ctx := context.Background()

	require.NoError(t, ch.Publish(ctx, "events/d1", "Dispense: done <ok> & \"quoted\""))

	msgs, err := s.ListMessages(ctx, "events/d1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, `{"message":"Dispense: done <ok> & \"quoted\""}`, msgs[0].Payload)
	assert.True(t, msgs[0].PublishedAt.Equal(t0))
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		update      map[string]any
		hasResponse bool
		outcome     *ir.Outcome
		valid       bool
	}{
		{"no response key", map[string]any{"other": "x"}, false, nil, true},
		{"null response", map[string]any{KeyResponse: nil}, true, nil, true},
		{
			"failure",
			map[string]any{KeyResponse: map[string]any{"requestId": "0001-0002", "result": "failure"}},
			true, &ir.Outcome{RequestID: "0001-0002", Result: ir.ResultFailure}, true,
		},
		{
			"missing request id",
			map[string]any{KeyResponse: map[string]any{"result": "success"}},
			true, &ir.Outcome{Result: ir.ResultSuccess}, false,
		},
		{"not an object", map[string]any{KeyResponse: "success"}, true, &ir.Outcome{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope("d1", tt.update)
			assert.Equal(t, tt.hasResponse, env.HasResponse)
			assert.Equal(t, tt.outcome, env.Outcome)
			if env.Empty() {
				return
			}
			if tt.valid {
				assert.NoError(t, env.Validate())
			} else {
				assert.ErrorIs(t, env.Validate(), ir.ErrMalformed)
			}
		})
	}
}
