package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/cockroachdb/apd/v3"
)

//go:embed policy.cue
var policySchema string

// Policy holds the business rules the engine enforces.
type Policy struct {
	// Command is the tracked command name.
	Command string

	// StalenessWindow is the age after which an unacknowledged request is
	// abandoned and may be superseded.
	StalenessWindow time.Duration

	// MinimumBalance is the balance required to initiate a request.
	MinimumBalance *apd.Decimal

	// DebitAmount is deducted on every successful reconciliation.
	DebitAmount *apd.Decimal

	// MaxAttempts bounds the conditional-write retry loop.
	MaxAttempts int

	// EventsTopicPrefix is prepended to the subject id for refresh notifications.
	EventsTopicPrefix string
}

// DefaultPolicy returns the policy used when no file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Command:           "dispense",
		StalenessWindow:   5 * time.Second,
		MinimumBalance:    apd.New(100, -2),
		DebitAmount:       apd.New(100, -2),
		MaxAttempts:       3,
		EventsTopicPrefix: "events/",
	}
}

// EventsTopic returns the refresh-notification topic for a subject.
func (p Policy) EventsTopic(subjectID string) string {
	return p.EventsTopicPrefix + subjectID
}

// PolicyError is a policy validation failure, with a CUE position when known.
type PolicyError struct {
	Message string
	Pos     token.Pos
}

func (e *PolicyError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// rawPolicy mirrors #Policy field names for cue.Value.Decode.
type rawPolicy struct {
	Command           string `json:"command"`
	StalenessWindow   string `json:"staleness_window"`
	MinimumBalance    string `json:"minimum_balance"`
	DebitAmount       string `json:"debit_amount"`
	MaxAttempts       int    `json:"max_attempts"`
	EventsTopicPrefix string `json:"events_topic_prefix"`
}

// LoadPolicy reads and validates a CUE policy file.
func LoadPolicy(path string) (Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(path, src)
}

// ParsePolicy validates src against the embedded #Policy schema.
//
// The file may set any subset of fields at top level; omitted fields take
// the schema defaults. Unknown fields are rejected.
func ParsePolicy(filename string, src []byte) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(policySchema, cue.Filename("policy.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Policy{}, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Policy")).Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Policy{}, formatCUEError(err)
	}

	var raw rawPolicy
	if err := v.Decode(&raw); err != nil {
		return Policy{}, formatCUEError(err)
	}
	return raw.policy(v)
}

func (r rawPolicy) policy(v cue.Value) (Policy, error) {
	window, err := time.ParseDuration(r.StalenessWindow)
	if err != nil {
		return Policy{}, fieldError(v, "staleness_window", err.Error())
	}
	if window <= 0 {
		return Policy{}, fieldError(v, "staleness_window", "must be positive")
	}
	minimum, _, err := apd.NewFromString(r.MinimumBalance)
	if err != nil {
		return Policy{}, fieldError(v, "minimum_balance", err.Error())
	}
	debit, _, err := apd.NewFromString(r.DebitAmount)
	if err != nil {
		return Policy{}, fieldError(v, "debit_amount", err.Error())
	}
	if debit.Cmp(minimum) > 0 {
		return Policy{}, fieldError(v, "debit_amount", "must not exceed minimum_balance")
	}
	return Policy{
		Command:           r.Command,
		StalenessWindow:   window,
		MinimumBalance:    minimum,
		DebitAmount:       debit,
		MaxAttempts:       r.MaxAttempts,
		EventsTopicPrefix: r.EventsTopicPrefix,
	}, nil
}

func fieldError(v cue.Value, field, msg string) error {
	return &PolicyError{
		Message: fmt.Sprintf("%s: %s", field, msg),
		Pos:     v.LookupPath(cue.ParsePath(field)).Pos(),
	}
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &PolicyError{Message: err.Error()}
	}
	first := errs[0]
	pe := &PolicyError{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		pe.Pos = positions[0]
	}
	return pe
}
