package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dispense/internal/config"
	"github.com/roach88/dispense/internal/ledger"
)

// PolicyIssue is one validation error with its source position.
type PolicyIssue struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// PolicySummary is the effective policy after defaults are applied.
type PolicySummary struct {
	Command           string `json:"command"`
	StalenessWindow   string `json:"staleness_window"`
	MinimumBalance    string `json:"minimum_balance"`
	DebitAmount       string `json:"debit_amount"`
	MaxAttempts       int    `json:"max_attempts"`
	EventsTopicPrefix string `json:"events_topic_prefix"`
}

// PolicyValidation holds the result of policy validate.
type PolicyValidation struct {
	Valid  bool           `json:"valid"`
	Errors []PolicyIssue  `json:"errors,omitempty"`
	Policy *PolicySummary `json:"policy,omitempty"`
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Work with policy files",
	}

	cmd.AddCommand(newPolicyValidateCommand(rootOpts))

	return cmd
}

func newPolicyValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a CUE policy file",
		Long: `Validate a policy file against the #Policy schema and print the effective
policy with defaults applied.

Exit codes:
  0 - policy valid
  1 - policy invalid
  2 - command error (file unreadable)

Examples:
  dispense policy validate policy.cue
  dispense policy validate policy.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runPolicyValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	f.VerboseLog("validating %s", path)

	policy, err := config.LoadPolicy(path)
	if err != nil {
		var pe *config.PolicyError
		if !errors.As(err, &pe) {
			return f.Fail(ExitCommandError, ErrCodeConfig, "read policy", err)
		}
		issue := PolicyIssue{Message: pe.Message}
		if pe.Pos.IsValid() {
			issue.File = pe.Pos.Filename()
			issue.Line = pe.Pos.Line()
			issue.Column = pe.Pos.Column()
		}
		return outputPolicyInvalid(f, issue)
	}

	summary := &PolicySummary{
		Command:           policy.Command,
		StalenessWindow:   policy.StalenessWindow.String(),
		MinimumBalance:    ledger.Format(policy.MinimumBalance),
		DebitAmount:       ledger.Format(policy.DebitAmount),
		MaxAttempts:       policy.MaxAttempts,
		EventsTopicPrefix: policy.EventsTopicPrefix,
	}
	if f.Format == "json" {
		return f.Success(PolicyValidation{Valid: true, Policy: summary})
	}
	writePolicyText(f.Writer, summary)
	return nil
}

func outputPolicyInvalid(f *OutputFormatter, issue PolicyIssue) error {
	if f.Format == "json" {
		if err := f.Error(ErrCodeInvalidSpec, "policy validation failed", PolicyValidation{
			Valid:  false,
			Errors: []PolicyIssue{issue},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "policy validation failed")
	}

	fmt.Fprintln(f.Writer, "\u2717 Policy invalid")
	if issue.Line > 0 {
		fmt.Fprintf(f.Writer, "  %s:%d:%d: %s\n", issue.File, issue.Line, issue.Column, issue.Message)
	} else {
		fmt.Fprintf(f.Writer, "  %s\n", issue.Message)
	}
	return NewExitError(ExitFailure, "policy validation failed")
}

func writePolicyText(w io.Writer, p *PolicySummary) {
	fmt.Fprintln(w, "\u2713 Policy valid")
	fmt.Fprintf(w, "  command:             %s\n", p.Command)
	fmt.Fprintf(w, "  staleness_window:    %s\n", p.StalenessWindow)
	fmt.Fprintf(w, "  minimum_balance:     %s\n", p.MinimumBalance)
	fmt.Fprintf(w, "  debit_amount:        %s\n", p.DebitAmount)
	fmt.Fprintf(w, "  max_attempts:        %d\n", p.MaxAttempts)
	fmt.Fprintf(w, "  events_topic_prefix: %s\n", p.EventsTopicPrefix)
}
