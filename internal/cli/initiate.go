package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dispense/internal/engine"
	"github.com/roach88/dispense/internal/ir"
)

// InitiateOptions holds flags for the initiate command.
type InitiateOptions struct {
	*RootOptions
	Token string
}

// NewInitiateCommand creates the initiate command.
func NewInitiateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitiateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "initiate <subject>",
		Short: "Request a dispense",
		Long: `Request that a subject's device dispense.

With --token the caller is resolved from a signed token (HS256, secret in
DISPENSE_JWT_SECRET) and must be assigned the named subject.

A declined request is an expected outcome: it prints the status and exits 0.

Exit codes:
  0 - accepted, already in progress, or declined
  1 - unknown subject, malformed request, or store/channel failure
  2 - command error (bad token, configuration, database)

Examples:
  dispense initiate d1
  dispense initiate d1 --token "$TOKEN" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitiate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "caller token; the subject must match its dispenser claim")

	return cmd
}

func runInitiate(opts *InitiateOptions, subjectID string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	return withApp(opts.RootOptions, f, func(a *app) error {
		req := ir.InitiateRequest{SubjectID: subjectID}
		if opts.Token != "" {
			v, err := a.verifier()
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeConfig, "token verification unavailable", err)
			}
			caller, err := v.Resolve(opts.Token, subjectID)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeAuth, "token rejected", err)
			}
			req = ir.InitiateRequest{SubjectID: caller, RequestedSubject: subjectID}
		}

		res, err := a.engine.Initiate(cmd.Context(), req)
		if err != nil {
			if outErr := f.Error(engineErrorCode(err), res.Message, res); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, string(res.Status), err)
		}

		f.VerboseLog("initiate %s: %s", subjectID, res.Status)
		return f.Emit(res, formatInitiate(res))
	})
}

func engineErrorCode(err error) string {
	switch {
	case engine.IsNotFound(err):
		return ErrCodeNotFound
	case engine.IsMalformed(err):
		return ErrCodeMalformed
	case engine.IsTransport(err):
		return ErrCodeTransport
	default:
		return ErrCodeGeneric
	}
}

func formatInitiate(res engine.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", res.Status, res.Message)
	if res.RequestID != "" {
		fmt.Fprintf(&b, "  request: %s\n", res.RequestID)
	}
	if res.Credits != "" {
		fmt.Fprintf(&b, "  credits: %s\n", res.Credits)
	}
	return b.String()
}
