package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dispense/internal/engine"
	"github.com/roach88/dispense/internal/ir"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	RequestID string
	Result    string
}

// ReconcileView is the JSON shape of one reconciliation.
type ReconcileView struct {
	Disposition string `json:"disposition"`
	SubjectID   string `json:"subject_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Credits     string `json:"credits,omitempty"`
	Signal      string `json:"signal,omitempty"`
	Elapsed     string `json:"elapsed,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ReportView is the JSON shape of the report command: the reconciliation
// of the reported outcome and of every follow-up update it produced.
type ReportView struct {
	Reconciliation ReconcileView   `json:"reconciliation"`
	FollowUps      []ReconcileView `json:"follow_ups"`
}

func reconcileView(r engine.Reconciliation) ReconcileView {
	v := ReconcileView{
		Disposition: string(r.Disposition),
		SubjectID:   r.SubjectID,
		RequestID:   r.RequestID,
		Credits:     r.Credits,
	}
	if r.Signal.Color != "" {
		v.Signal = r.Signal.String()
	}
	if r.Elapsed > 0 {
		v.Elapsed = r.Elapsed.String()
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <subject>",
		Short: "Report a device outcome through the shadow",
		Long: `Act as the device: write reported.response to the subject's shadow and
reconcile the accepted update. Updates produced by the reconciliation (the
clearing write of reported.response) are delivered and reconciled too.

Exit codes:
  0 - outcome reconciled (including unmatched and mismatched outcomes)
  1 - reconciliation aborted (unknown subject, malformed outcome, store failure)
  2 - command error

Examples:
  dispense report d1 --request-id 0000-0001 --result success
  dispense report d1 --request-id 0000-0001 --result failure --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "request id being answered")
	cmd.Flags().StringVar(&opts.Result, "result", string(ir.ResultSuccess), "outcome (success|failure)")

	return cmd
}

func runReport(opts *ReportOptions, subjectID string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	return withApp(opts.RootOptions, f, func(a *app) error {
		ctx := cmd.Context()
		outcome := ir.Outcome{RequestID: opts.RequestID, Result: ir.Result(opts.Result)}

		env, err := a.shadow.Report(ctx, subjectID, outcome)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, "write reported outcome", err)
		}

		rec := a.engine.Reconcile(ctx, env)
		view := ReportView{
			Reconciliation: reconcileView(rec),
			FollowUps:      []ReconcileView{},
		}
		for _, next := range a.shadow.Drain() {
			follow := a.engine.Reconcile(ctx, next)
			f.VerboseLog("follow-up on %s: %s", next.Topic, follow.Disposition)
			view.FollowUps = append(view.FollowUps, reconcileView(follow))
		}

		if rec.Disposition == engine.DispositionAborted {
			if outErr := f.Error(engineErrorCode(rec.Err), "reconcile aborted", view); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "reconcile aborted", rec.Err)
		}
		return f.Emit(view, formatReport(view))
	})
}

func formatReport(view ReportView) string {
	var b strings.Builder
	writeReconcile(&b, "", view.Reconciliation)
	for _, follow := range view.FollowUps {
		writeReconcile(&b, "  follow-up ", follow)
	}
	return b.String()
}

func writeReconcile(b *strings.Builder, prefix string, v ReconcileView) {
	fmt.Fprintf(b, "%s%s", prefix, v.Disposition)
	if v.RequestID != "" {
		fmt.Fprintf(b, " request=%s", v.RequestID)
	}
	if v.Credits != "" {
		fmt.Fprintf(b, " credits=%s", v.Credits)
	}
	if v.Signal != "" {
		fmt.Fprintf(b, " signal=%s", v.Signal)
	}
	if v.Elapsed != "" {
		fmt.Fprintf(b, " elapsed=%s", v.Elapsed)
	}
	b.WriteString("\n")
}
