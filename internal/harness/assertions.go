package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dispense/internal/channel"
	"github.com/roach88/dispense/internal/config"
	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/signal"
	"github.com/roach88/dispense/internal/store"
	"github.com/roach88/dispense/internal/testutil"
)

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "credits": the subject's balance equals Equals
	// - "requests": the subject has Count outstanding requests
	// - "commands": Count commands were sent to the subject
	// - "signal": the subject's output signal is (Count, Color)
	// - "events": Count refresh notifications were published for the subject
	// - "audit_contains": some audit entry of the subject contains Text
	Type string `yaml:"type"`

	// Subject is the subject the assertion inspects.
	Subject string `yaml:"subject"`

	// Equals is the expected decimal balance (credits).
	Equals string `yaml:"equals,omitempty"`

	// Count is the expected count (requests, commands, signal, events).
	Count *int `yaml:"count,omitempty"`

	// Color is the expected signal color class or hex value (signal).
	Color string `yaml:"color,omitempty"`

	// Text is the expected audit substring (audit_contains).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertCredits       = "credits"
	AssertRequests      = "requests"
	AssertCommands      = "commands"
	AssertSignal        = "signal"
	AssertEvents        = "events"
	AssertAuditContains = "audit_contains"
)

// AssertionContext carries what assertions inspect.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Shadow   *channel.Shadow
	Recorder *testutil.RecordingChannel
	Policy   config.Policy
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Subject  string       // Subject inspected
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (subject=%s)\n", e.Type, e.Subject)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v %v\n", event.Seq, event.Type, event.Args, event.Result)
		}
	}

	return buf.String()
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Subject == "" {
		return fmt.Errorf("assertions[%d]: subject is required", index)
	}

	needCount := func() error {
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertCredits:
		if _, err := ledger.Parse(a.Equals); err != nil {
			return fmt.Errorf("assertions[%d]: equals: %w", index, err)
		}
	case AssertRequests, AssertCommands, AssertEvents:
		return needCount()
	case AssertSignal:
		if err := needCount(); err != nil {
			return err
		}
		if *a.Count > signal.MaxCount {
			return fmt.Errorf("assertions[%d]: count must be at most %d for signal", index, signal.MaxCount)
		}
		if _, err := signal.ParseColor(a.Color); err != nil {
			return fmt.Errorf("assertions[%d]: color: %w", index, err)
		}
	case AssertAuditContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for audit_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Trace = result.Trace
			}
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertCredits:
		return assertCredits(a, actx)
	case AssertRequests:
		return assertRequests(a, actx)
	case AssertCommands:
		return assertCount(a, len(actx.Recorder.Commands(a.Subject)))
	case AssertSignal:
		return assertSignal(a, actx)
	case AssertEvents:
		msgs, err := actx.Store.ListMessages(actx.Ctx, actx.Policy.EventsTopic(a.Subject))
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		return assertCount(a, len(msgs))
	case AssertAuditContains:
		return assertAuditContains(a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCredits(a Assertion, actx *AssertionContext) error {
	want, err := ledger.Parse(a.Equals)
	if err != nil {
		return err
	}
	rec, err := actx.Store.Get(actx.Ctx, a.Subject)
	if err != nil {
		return fmt.Errorf("load subject: %w", err)
	}
	if rec.Credits.Cmp(want) != 0 {
		return &AssertionError{
			Type:     a.Type,
			Subject:  a.Subject,
			Expected: ledger.Format(want),
			Actual:   ledger.Format(&rec.Credits),
		}
	}
	return nil
}

func assertRequests(a Assertion, actx *AssertionContext) error {
	rec, err := actx.Store.Get(actx.Ctx, a.Subject)
	if err != nil {
		return fmt.Errorf("load subject: %w", err)
	}
	return assertCount(a, len(rec.Requests))
}

func assertCount(a Assertion, got int) error {
	if got != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Subject:  a.Subject,
			Expected: fmt.Sprintf("count %d", *a.Count),
			Actual:   fmt.Sprintf("count %d", got),
		}
	}
	return nil
}

func assertSignal(a Assertion, actx *AssertionContext) error {
	color, err := signal.ParseColor(a.Color)
	if err != nil {
		return err
	}
	want := signal.Signal{Count: *a.Count, Color: color}

	got, ok, err := actx.Shadow.OutputSignal(actx.Ctx, a.Subject)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{Type: a.Type, Subject: a.Subject, Expected: want.String(), Actual: "no signal set"}
	}
	if got != want {
		return &AssertionError{Type: a.Type, Subject: a.Subject, Expected: want.String(), Actual: got.String()}
	}
	return nil
}

func assertAuditContains(a Assertion, actx *AssertionContext) error {
	entries, err := actx.Store.ListAudit(actx.Ctx, a.Subject, 0)
	if err != nil {
		return fmt.Errorf("list audit: %w", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Message, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Subject:  a.Subject,
		Expected: fmt.Sprintf("an entry containing %q", a.Text),
		Actual:   fmt.Sprintf("%d entries, none matching", len(entries)),
	}
}
