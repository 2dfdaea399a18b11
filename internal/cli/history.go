package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dispense/internal/ir"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Limit int
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit <subject>",
		Short: "List a subject's audit entries",
		Long: `List audit entries for a subject, oldest first.

With --limit only the most recent entries are shown.

Examples:
  dispense audit d1
  dispense audit d1 --limit 5 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the most recent n entries (0 = all)")

	return cmd
}

func runAudit(opts *AuditOptions, subjectID string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Limit < 0 {
		return f.Fail(ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("invalid --limit %d", opts.Limit), nil)
	}

	return withApp(opts.RootOptions, f, func(a *app) error {
		entries, err := a.store.ListAudit(cmd.Context(), subjectID, opts.Limit)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, "list audit entries", err)
		}
		if entries == nil {
			entries = []ir.AuditEntry{}
		}

		var b strings.Builder
		if len(entries) == 0 {
			fmt.Fprintf(&b, "No audit entries for %s.\n", subjectID)
		}
		for _, e := range entries {
			fmt.Fprintf(&b, "%s  %s\n", e.Timestamp.Format(time.RFC3339Nano), e.Message)
		}
		return f.Emit(entries, b.String())
	})
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <subject>",
		Short: "List notifications published for a subject",
		Long: `List the refresh notifications published on the subject's events topic
(policy events_topic_prefix followed by the subject id).

Examples:
  dispense events d1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runEvents(opts *RootOptions, subjectID string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	return withApp(opts, f, func(a *app) error {
		topic := a.policy.EventsTopic(subjectID)
		msgs, err := a.store.ListMessages(cmd.Context(), topic)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, "list messages", err)
		}
		if msgs == nil {
			msgs = []ir.Message{}
		}

		var b strings.Builder
		if len(msgs) == 0 {
			fmt.Fprintf(&b, "No events on %s.\n", topic)
		}
		for _, m := range msgs {
			fmt.Fprintf(&b, "#%d  %s  %s\n", m.Seq, m.PublishedAt.Format(time.RFC3339Nano), m.Payload)
		}
		return f.Emit(msgs, b.String())
	})
}
