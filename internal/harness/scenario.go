package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/requestid"
	"github.com/roach88/dispense/internal/signal"
)

// DefaultStart is the clock reading scenarios start at unless they set one.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Scenario defines one harness run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RequestIDs are handed out in order to new requests. When empty the
	// sequence generator is used.
	RequestIDs []string `yaml:"request_ids,omitempty"`

	// Start is the initial clock reading (RFC 3339). Default: DefaultStart.
	Start string `yaml:"start,omitempty"`

	// Policy overrides policy fields; it is validated against the policy
	// schema like a policy file.
	Policy map[string]any `yaml:"policy,omitempty"`

	// Subjects are created before the first step.
	Subjects []SubjectSeed `yaml:"subjects"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SubjectSeed is one subject created before the steps run.
type SubjectSeed struct {
	ID      string `yaml:"id"`
	Credits string `yaml:"credits"`
}

// Step is one scenario action. Exactly one of Initiate, Advance, Report or
// Credit is set.
type Step struct {
	// Initiate is the subject to initiate a request for.
	Initiate string `yaml:"initiate,omitempty"`

	// Advance moves the clock forward (Go duration syntax).
	Advance string `yaml:"advance,omitempty"`

	// Report plays the device reporting an outcome.
	Report *ReportStep `yaml:"report,omitempty"`

	// Credit tops up a subject's balance.
	Credit *CreditStep `yaml:"credit,omitempty"`

	// Expect, when set, is checked against the step's result.
	Expect *Expect `yaml:"expect,omitempty"`
}

// ReportStep is a device-reported outcome.
type ReportStep struct {
	Subject   string `yaml:"subject"`
	RequestID string `yaml:"request_id"`
	Result    string `yaml:"result"`
}

// CreditStep is a balance top-up.
type CreditStep struct {
	Subject string `yaml:"subject"`
	Amount  string `yaml:"amount"`
}

// Expect lists the step result fields to check. Empty fields are not checked.
type Expect struct {
	Status      string `yaml:"status,omitempty"`
	Disposition string `yaml:"disposition,omitempty"`
	RequestID   string `yaml:"request_id,omitempty"`
	Credits     string `yaml:"credits,omitempty"`
	Signal      string `yaml:"signal,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

// kind names the action a step performs.
func (s Step) kind() string {
	switch {
	case s.Initiate != "":
		return EventInitiate
	case s.Advance != "":
		return EventAdvance
	case s.Report != nil:
		return EventReport
	case s.Credit != nil:
		return EventCredit
	}
	return ""
}

func (s Step) actionCount() int {
	n := 0
	if s.Initiate != "" {
		n++
	}
	if s.Advance != "" {
		n++
	}
	if s.Report != nil {
		n++
	}
	if s.Credit != nil {
		n++
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// StartTime returns the scenario's initial clock reading.
func (s *Scenario) StartTime() (time.Time, error) {
	if s.Start == "" {
		return DefaultStart, nil
	}
	t, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t.UTC(), nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := s.StartTime(); err != nil {
		return err
	}

	for i, id := range s.RequestIDs {
		if !requestid.Valid(id) {
			return fmt.Errorf("request_ids[%d]: %q is not of the form nnnn-nnnn", i, id)
		}
	}

	seen := make(map[string]bool, len(s.Subjects))
	for i, sub := range s.Subjects {
		if sub.ID == "" {
			return fmt.Errorf("subjects[%d]: id is required", i)
		}
		if seen[sub.ID] {
			return fmt.Errorf("subjects[%d]: duplicate id %q", i, sub.ID)
		}
		seen[sub.ID] = true
		if _, err := ledger.Parse(sub.Credits); err != nil {
			return fmt.Errorf("subjects[%d]: credits: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	if n := step.actionCount(); n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of initiate, advance, report, credit is required (got %d)", index, n)
	}

	switch step.kind() {
	case EventAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	case EventReport:
		if step.Report.Subject == "" {
			return fmt.Errorf("steps[%d]: report.subject is required", index)
		}
	case EventCredit:
		if step.Credit.Subject == "" {
			return fmt.Errorf("steps[%d]: credit.subject is required", index)
		}
		amount, err := ledger.Parse(step.Credit.Amount)
		if err != nil {
			return fmt.Errorf("steps[%d]: credit.amount: %w", index, err)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("steps[%d]: credit.amount must not be negative", index)
		}
	}

	if step.Expect == nil {
		return nil
	}
	if step.kind() == EventAdvance {
		return fmt.Errorf("steps[%d]: advance steps take no expect clause", index)
	}
	if step.Expect.Signal != "" {
		if err := validateSignal(step.Expect.Signal); err != nil {
			return fmt.Errorf("steps[%d].expect.signal: %w", index, err)
		}
	}
	return nil
}

// validateSignal checks the "count/color" rendering used in expect clauses.
func validateSignal(s string) error {
	var count int
	var color string
	if _, err := fmt.Sscanf(s, "%d/%s", &count, &color); err != nil {
		return fmt.Errorf("%q is not of the form count/color", s)
	}
	if count < 0 || count > signal.MaxCount {
		return fmt.Errorf("count %d out of range 0..%d", count, signal.MaxCount)
	}
	if _, err := signal.ParseColor(color); err != nil {
		return err
	}
	return nil
}

// outcome is the device report the step plays. The result tag is passed
// through unchecked so scenarios can exercise malformed reports.
func (r ReportStep) outcome() ir.Outcome {
	return ir.Outcome{RequestID: r.RequestID, Result: ir.Result(r.Result)}
}
