package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/signal"
	"github.com/roach88/dispense/internal/store"
)

const (
	accentColor = "#5B8DEF"
	mutedColor  = "#626262"

	ledOn  = "\u25cf"
	ledOff = "\u25cb"
)

// PendingView is the command currently in the device's desired state.
type PendingView struct {
	Command   string `json:"command"`
	RequestID string `json:"request_id"`
}

// StatusView is the JSON shape of the status command.
type StatusView struct {
	SubjectView
	Signal  *signal.Signal `json:"signal,omitempty"`
	Pending *PendingView   `json:"pending_command,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <subject>",
		Short: "Show a subject's credits, requests and LED ring",
		Long: `Show the subject record and the device's desired state: the command
awaiting an outcome and the LED ring last set after a dispense.

Examples:
  dispense status d1
  dispense status d1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, subjectID string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	return withApp(opts, f, func(a *app) error {
		ctx := cmd.Context()

		rec, err := a.store.Get(ctx, subjectID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("subject %s not found", subjectID), nil)
		case err != nil:
			return f.Fail(ExitFailure, ErrCodeStore, "load subject", err)
		}

		view := StatusView{SubjectView: subjectView(rec)}

		sig, ok, err := a.shadow.OutputSignal(ctx, subjectID)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, "read output signal", err)
		}
		if ok {
			view.Signal = &sig
		}

		command, requestID, ok, err := a.shadow.PendingCommand(ctx, subjectID)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, "read pending command", err)
		}
		if ok {
			view.Pending = &PendingView{Command: command, RequestID: requestID}
		}

		return f.Emit(view, renderStatus(cmd.OutOrStdout(), view))
	})
}

// renderStatus draws the status panel. Colors degrade to plain text when w
// is not a terminal.
func renderStatus(w io.Writer, view StatusView) string {
	r := lipgloss.NewRenderer(w)

	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor))
	label := r.NewStyle().Foreground(lipgloss.Color(mutedColor)).Width(10)
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(accentColor)).
		Padding(0, 1)

	row := func(name, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, label.Render(name), value)
	}

	lines := []string{
		title.Render(view.SubjectID),
		row("credits", view.Credits),
		row("ring", renderRing(r, view.Signal)),
		row("requests", formatRequests(view.Requests)),
	}
	if view.Pending != nil {
		lines = append(lines, row("pending", fmt.Sprintf("%s %s", view.Pending.Command, view.Pending.RequestID)))
	}

	return box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}

func renderRing(r *lipgloss.Renderer, sig *signal.Signal) string {
	off := r.NewStyle().Foreground(lipgloss.Color(mutedColor))
	if sig == nil {
		return off.Render(strings.Repeat(ledOff, signal.MaxCount) + " unset")
	}

	on := r.NewStyle().Foreground(lipgloss.Color(sig.Color.Hex()))
	var b strings.Builder
	for i := 0; i < signal.MaxCount; i++ {
		if i < sig.Count {
			b.WriteString(on.Render(ledOn))
		} else {
			b.WriteString(off.Render(ledOff))
		}
	}
	b.WriteString(" ")
	b.WriteString(sig.String())
	return b.String()
}

func formatRequests(requests []ir.Request) string {
	if len(requests) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(requests))
	for _, req := range requests {
		parts = append(parts, fmt.Sprintf("%s %s (%s)", req.Command, req.RequestID, req.CreatedAt.Format(time.RFC3339)))
	}
	return strings.Join(parts, "\n")
}
