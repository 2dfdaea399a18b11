package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/dispense/internal/signal"
)

// Channel operation names recorded by RecordingChannel.
const (
	OpSendCommand     = "send_command"
	OpSetOutputSignal = "set_output_signal"
	OpClearOutcome    = "clear_outcome"
	OpClearCommand    = "clear_command"
	OpPublish         = "publish"
)

// ChannelCall is one recorded actuation channel call.
type ChannelCall struct {
	Op        string        `json:"op"`
	SubjectID string        `json:"subject_id,omitempty"`
	Command   string        `json:"command,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	At        time.Time     `json:"at,omitzero"`
	Signal    signal.Signal `json:"signal,omitzero"`
	Topic     string        `json:"topic,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Actuator is the actuation channel method set (mirrors engine.ActuationChannel).
type Actuator interface {
	SendCommand(ctx context.Context, subjectID, command, requestID string, at time.Time) error
	SetOutputSignal(ctx context.Context, subjectID string, sig signal.Signal) error
	ClearOutcome(ctx context.Context, subjectID string) error
	ClearCommand(ctx context.Context, subjectID string) error
	Publish(ctx context.Context, topic, message string) error
}

// RecordingChannel records every call and optionally forwards it to Inner.
//
// Fail maps an op name to the error that op returns; a failing op is still
// recorded but not forwarded.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingChannel struct {
	Inner Actuator
	Fail  map[string]error

	mu    sync.Mutex
	calls []ChannelCall
}

// NewRecordingChannel creates a recorder forwarding to inner (may be nil).
func NewRecordingChannel(inner Actuator) *RecordingChannel {
	return &RecordingChannel{Inner: inner, Fail: map[string]error{}}
}

func (r *RecordingChannel) record(c ChannelCall) error {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	err := r.Fail[c.Op]
	r.mu.Unlock()
	return err
}

// SendCommand implements engine.ActuationChannel.
func (r *RecordingChannel) SendCommand(ctx context.Context, subjectID, command, requestID string, at time.Time) error {
	if err := r.record(ChannelCall{Op: OpSendCommand, SubjectID: subjectID, Command: command, RequestID: requestID, At: at}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.SendCommand(ctx, subjectID, command, requestID, at)
}

// SetOutputSignal implements engine.ActuationChannel.
func (r *RecordingChannel) SetOutputSignal(ctx context.Context, subjectID string, sig signal.Signal) error {
	if err := r.record(ChannelCall{Op: OpSetOutputSignal, SubjectID: subjectID, Signal: sig}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.SetOutputSignal(ctx, subjectID, sig)
}

// ClearOutcome implements engine.ActuationChannel.
func (r *RecordingChannel) ClearOutcome(ctx context.Context, subjectID string) error {
	if err := r.record(ChannelCall{Op: OpClearOutcome, SubjectID: subjectID}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.ClearOutcome(ctx, subjectID)
}

// ClearCommand implements engine.ActuationChannel.
func (r *RecordingChannel) ClearCommand(ctx context.Context, subjectID string) error {
	if err := r.record(ChannelCall{Op: OpClearCommand, SubjectID: subjectID}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.ClearCommand(ctx, subjectID)
}

// Publish implements engine.ActuationChannel.
func (r *RecordingChannel) Publish(ctx context.Context, topic, message string) error {
	if err := r.record(ChannelCall{Op: OpPublish, Topic: topic, Message: message}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.Publish(ctx, topic, message)
}

// Calls returns a copy of all recorded calls in order.
func (r *RecordingChannel) Calls() []ChannelCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChannelCall(nil), r.calls...)
}

// CallsFor returns the recorded calls of op, in order.
func (r *RecordingChannel) CallsFor(op string) []ChannelCall {
	var out []ChannelCall
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Commands returns the SendCommand calls addressed to subjectID.
func (r *RecordingChannel) Commands(subjectID string) []ChannelCall {
	var out []ChannelCall
	for _, c := range r.CallsFor(OpSendCommand) {
		if c.SubjectID == subjectID {
			out = append(out, c)
		}
	}
	return out
}

// LastSignal returns the most recent signal set for subjectID.
func (r *RecordingChannel) LastSignal(subjectID string) (signal.Signal, bool) {
	calls := r.CallsFor(OpSetOutputSignal)
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].SubjectID == subjectID {
			return calls[i].Signal, true
		}
	}
	return signal.Signal{}, false
}
