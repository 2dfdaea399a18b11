package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/dispense/internal/audit"
	"github.com/roach88/dispense/internal/channel"
	"github.com/roach88/dispense/internal/config"
	"github.com/roach88/dispense/internal/engine"
	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/requestid"
	"github.com/roach88/dispense/internal/store"
	"github.com/roach88/dispense/internal/testutil"
)

// Harness is the scenario execution environment.
type Harness struct {
	store    *store.Store
	shadow   *channel.Shadow
	recorder *testutil.RecordingChannel
	engine   *engine.Engine
	clock    *testutil.ManualClock
	policy   config.Policy
	logger   *slog.Logger

	// seen is how many recorder calls are already in the trace.
	seen int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Create the store, channel, audit log and engine
//  2. Create the scenario's subjects
//  3. Execute steps, checking expect clauses
//  4. Evaluate assertions against the final state
func Run(scenario *Scenario) (result *Result, err error) {
	ctx := context.Background()

	start, err := scenario.StartTime()
	if err != nil {
		return nil, err
	}
	policy, err := scenarioPolicy(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock(start)
	shadow := channel.New(st, channel.WithNow(clock.Now))
	recorder := testutil.NewRecordingChannel(shadow)

	auditSeq := 0
	auditLog := audit.New(audit.NewStoreSink(st), audit.WithIDs(func() string {
		auditSeq++
		return fmt.Sprintf("audit-%04d", auditSeq)
	}))

	var ids requestid.Generator = requestid.NewSequence()
	if len(scenario.RequestIDs) > 0 {
		ids = requestid.NewFixed(scenario.RequestIDs...)
	}

	h := &Harness{
		store:    st,
		shadow:   shadow,
		recorder: recorder,
		clock:    clock,
		policy:   policy,
		logger:   logger,
		engine: engine.New(st, recorder, auditLog,
			engine.WithClock(clock),
			engine.WithRequestIDs(ids),
			engine.WithPolicy(policy),
			engine.WithLogger(logger)),
	}

	// requestid.Fixed panics once its ids run out.
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("scenario %s: %v", scenario.Name, r)
		}
	}()

	for i, sub := range scenario.Subjects {
		credits, err := ledger.Parse(sub.Credits)
		if err != nil {
			return nil, fmt.Errorf("subject %d: %w", i, err)
		}
		if _, err := st.Create(ctx, sub.ID, credits); err != nil {
			return nil, fmt.Errorf("subject %d: %w", i, err)
		}
	}

	result = NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Shadow:   shadow,
		Recorder: recorder,
		Policy:   policy,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// scenarioPolicy validates the scenario's policy overrides against the
// policy schema. JSON is valid CUE, so the overrides go through the same
// parser as a policy file.
func scenarioPolicy(s *Scenario) (config.Policy, error) {
	if len(s.Policy) == 0 {
		return config.DefaultPolicy(), nil
	}
	src, err := json.Marshal(s.Policy)
	if err != nil {
		return config.Policy{}, fmt.Errorf("policy: %w", err)
	}
	p, err := config.ParsePolicy(s.Name+".policy", src)
	if err != nil {
		return config.Policy{}, fmt.Errorf("policy: %w", err)
	}
	return p, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	var fields map[string]string

	switch step.kind() {
	case EventInitiate:
		res, err := h.engine.Initiate(ctx, ir.InitiateRequest{SubjectID: step.Initiate})
		fields = map[string]string{
			"status":  string(res.Status),
			"message": res.Message,
		}
		putIf(fields, "request_id", res.RequestID)
		putIf(fields, "credits", res.Credits)
		putIf(fields, "error", errorCode(err))
		result.AddEvent(EventInitiate, map[string]string{"subject": step.Initiate}, fields)
		h.flushChannel(result)

	case EventAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.AddEvent(EventAdvance, map[string]string{"duration": d.String()}, nil)

	case EventReport:
		r := step.Report
		env, err := h.shadow.Report(ctx, r.Subject, r.outcome())
		if err != nil {
			return err
		}
		fields = reconciliationFields(h.engine.Reconcile(ctx, env))
		result.AddEvent(EventReport, map[string]string{
			"subject":    r.Subject,
			"request_id": r.RequestID,
			"result":     r.Result,
		}, fields)
		h.flushChannel(result)

		for _, follow := range h.shadow.Drain() {
			rec := h.engine.Reconcile(ctx, follow)
			result.AddEvent(EventReconcile, map[string]string{"topic": follow.Topic}, reconciliationFields(rec))
			h.flushChannel(result)
		}

	case EventCredit:
		c := step.Credit
		amount, err := ledger.Parse(c.Amount)
		if err != nil {
			return err
		}
		fields = map[string]string{}
		rec, err := h.store.AddCredits(ctx, c.Subject, amount)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fields["error"] = string(engine.ErrCodeNotFound)
		case err != nil:
			return err
		default:
			fields["credits"] = ledger.Format(&rec.Credits)
		}
		result.AddEvent(EventCredit, map[string]string{
			"subject": c.Subject,
			"amount":  ledger.Format(amount),
		}, fields)
	}

	h.logger.Info("step completed", "step", index, "kind", step.kind())

	if step.Expect != nil {
		checkExpect(index, step, fields, result)
	}
	return nil
}

// flushChannel appends the channel calls made since the last flush.
func (h *Harness) flushChannel(result *Result) {
	calls := h.recorder.Calls()
	for _, c := range calls[h.seen:] {
		result.AddEvent(EventChannel, channelArgs(c), nil)
	}
	h.seen = len(calls)
}

func channelArgs(c testutil.ChannelCall) map[string]string {
	args := map[string]string{"op": c.Op}
	putIf(args, "subject", c.SubjectID)
	putIf(args, "command", c.Command)
	putIf(args, "request_id", c.RequestID)
	if !c.At.IsZero() {
		args["at"] = c.At.UTC().Format(time.RFC3339Nano)
	}
	if c.Op == testutil.OpSetOutputSignal {
		args["signal"] = c.Signal.String()
	}
	putIf(args, "topic", c.Topic)
	putIf(args, "message", c.Message)
	return args
}

func reconciliationFields(r engine.Reconciliation) map[string]string {
	fields := map[string]string{"disposition": string(r.Disposition)}
	putIf(fields, "request_id", r.RequestID)
	putIf(fields, "credits", r.Credits)
	switch r.Disposition {
	case engine.DispositionSucceeded:
		fields["signal"] = r.Signal.String()
		fields["elapsed"] = r.Elapsed.String()
	case engine.DispositionFailed, engine.DispositionMismatch:
		fields["elapsed"] = r.Elapsed.String()
	}
	putIf(fields, "error", errorCode(r.Err))
	return fields
}

// checkExpect compares the non-empty expect fields with the step result.
func checkExpect(index int, step Step, fields map[string]string, result *Result) {
	want := map[string]string{
		"status":      step.Expect.Status,
		"disposition": step.Expect.Disposition,
		"request_id":  step.Expect.RequestID,
		"credits":     step.Expect.Credits,
		"signal":      step.Expect.Signal,
		"error":       step.Expect.Error,
	}
	for _, key := range []string{"status", "disposition", "request_id", "credits", "signal", "error"} {
		if want[key] == "" {
			continue
		}
		if got := fields[key]; got != want[key] {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s = %q, want %q",
				index, step.kind(), key, got, want[key]))
		}
	}
}

func errorCode(err error) string {
	var e *engine.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func putIf(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
