// Package channel carries commands to devices and outcomes back, using a
// device shadow: a desired document the engine writes and a reported
// document the device writes.
//
//	desired.request   {command, requestId, timestamp}   engine -> device
//	desired.led_ring  {count, color, class}             engine -> device
//	reported.response {requestId, result}               device -> engine
//
// Every accepted update to the reported document is delivered back as an
// ir.OutcomeEnvelope. Clearing the response (writing null) produces such an
// update too; the engine ignores it.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/signal"
)

// Shadow document keys.
const (
	KeyRequest  = "request"
	KeyLEDRing  = "led_ring"
	KeyResponse = "response"
)

// ShadowStore is the persistence the channel writes through.
type ShadowStore interface {
	GetShadow(ctx context.Context, subjectID string) (ir.Shadow, error)
	UpdateShadow(ctx context.Context, subjectID string, desired, reported map[string]any) (ir.Shadow, error)
	AppendMessage(ctx context.Context, topic, payload string, at time.Time) (ir.Message, error)
}

// Shadow implements the engine's actuation channel over ShadowStore.
//
// Thread-safety: Shadow is safe for concurrent use.
type Shadow struct {
	store ShadowStore
	now   func() time.Time

	mu     sync.Mutex
	outbox []ir.OutcomeEnvelope
}

// Option configures a Shadow.
type Option func(*Shadow)

// WithNow sets the clock used to stamp published messages.
func WithNow(now func() time.Time) Option {
	return func(s *Shadow) {
		s.now = now
	}
}

// New creates a Shadow channel.
func New(store ShadowStore, opts ...Option) *Shadow {
	s := &Shadow{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendCommand writes the command into desired.request.
func (s *Shadow) SendCommand(ctx context.Context, subjectID, command, requestID string, at time.Time) error {
	_, err := s.store.UpdateShadow(ctx, subjectID, map[string]any{
		KeyRequest: map[string]any{
			"command":   command,
			"requestId": requestID,
			"timestamp": at.UTC().Format(time.RFC3339Nano),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// SetOutputSignal writes the LED ring state into desired.led_ring.
func (s *Shadow) SetOutputSignal(ctx context.Context, subjectID string, sig signal.Signal) error {
	_, err := s.store.UpdateShadow(ctx, subjectID, map[string]any{
		KeyLEDRing: map[string]any{
			"count": sig.Count,
			"color": sig.Color.Hex(),
			"class": string(sig.Color),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("set output signal: %w", err)
	}
	return nil
}

// ClearOutcome writes reported.response = null and queues the resulting
// accepted update for delivery.
func (s *Shadow) ClearOutcome(ctx context.Context, subjectID string) error {
	update := map[string]any{KeyResponse: nil}
	if _, err := s.store.UpdateShadow(ctx, subjectID, nil, update); err != nil {
		return fmt.Errorf("clear outcome: %w", err)
	}
	s.enqueue(Envelope(subjectID, update))
	return nil
}

// ClearCommand removes desired.request.
func (s *Shadow) ClearCommand(ctx context.Context, subjectID string) error {
	if _, err := s.store.UpdateShadow(ctx, subjectID, map[string]any{KeyRequest: nil}, nil); err != nil {
		return fmt.Errorf("clear command: %w", err)
	}
	return nil
}

// Publish records a {"message": ...} notification on topic.
func (s *Shadow) Publish(ctx context.Context, topic, message string) error {
	payload, err := ir.MarshalCanonical(map[string]any{"message": message})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if _, err := s.store.AppendMessage(ctx, topic, string(payload), s.now()); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Report is the device side: it writes reported.response and returns the
// envelope the accepted update produces.
func (s *Shadow) Report(ctx context.Context, subjectID string, outcome ir.Outcome) (ir.OutcomeEnvelope, error) {
	update := map[string]any{
		KeyResponse: map[string]any{
			"requestId": outcome.RequestID,
			"result":    string(outcome.Result),
		},
	}
	if _, err := s.store.UpdateShadow(ctx, subjectID, nil, update); err != nil {
		return ir.OutcomeEnvelope{}, fmt.Errorf("report: %w", err)
	}
	return Envelope(subjectID, update), nil
}

// Drain returns and clears the queued accepted updates.
func (s *Shadow) Drain() []ir.OutcomeEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

func (s *Shadow) enqueue(env ir.OutcomeEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, env)
}

// Envelope converts an accepted update of the reported document into the
// reconcile input.
//
// No response key means HasResponse is false. A null response is the
// clearing write and carries no outcome. A response that is not an object
// yields an empty outcome, which fails validation as malformed.
func Envelope(subjectID string, reported map[string]any) ir.OutcomeEnvelope {
	env := ir.OutcomeEnvelope{Topic: ir.ShadowAcceptedTopic(subjectID)}

	raw, ok := reported[KeyResponse]
	if !ok {
		return env
	}
	env.HasResponse = true
	if raw == nil {
		return env
	}

	resp, _ := raw.(map[string]any)
	requestID, _ := resp["requestId"].(string)
	result, _ := resp["result"].(string)
	env.Outcome = &ir.Outcome{RequestID: requestID, Result: ir.Result(result)}
	return env
}

// PendingCommand returns the command currently in desired.request.
func (s *Shadow) PendingCommand(ctx context.Context, subjectID string) (command, requestID string, ok bool, err error) {
	sh, err := s.store.GetShadow(ctx, subjectID)
	if err != nil {
		return "", "", false, fmt.Errorf("pending command: %w", err)
	}
	req, found := sh.Desired[KeyRequest].(map[string]any)
	if !found {
		return "", "", false, nil
	}
	command, _ = req["command"].(string)
	requestID, _ = req["requestId"].(string)
	return command, requestID, true, nil
}

// OutputSignal returns the LED ring state in desired.led_ring.
func (s *Shadow) OutputSignal(ctx context.Context, subjectID string) (signal.Signal, bool, error) {
	sh, err := s.store.GetShadow(ctx, subjectID)
	if err != nil {
		return signal.Signal{}, false, fmt.Errorf("output signal: %w", err)
	}
	ring, found := sh.Desired[KeyLEDRing].(map[string]any)
	if !found {
		return signal.Signal{}, false, nil
	}

	count, err := toInt(ring["count"])
	if err != nil {
		return signal.Signal{}, false, fmt.Errorf("output signal: count: %w", err)
	}
	class, _ := ring["class"].(string)
	color, err := signal.ParseColor(class)
	if err != nil {
		return signal.Signal{}, false, fmt.Errorf("output signal: %w", err)
	}
	return signal.Signal{Count: count, Color: color}, true, nil
}

// toInt accepts the int written in-process and the json.Number read back
// from the store.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
