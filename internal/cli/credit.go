package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/store"
)

// NewCreditCommand creates the credit command.
func NewCreditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credit <subject> <amount>",
		Short: "Top up a subject's credits",
		Long: `Add credits to a subject's balance.

The top-up is a conditional write retried on conflict, so it is safe to
run while the subject is being dispensed to.

Examples:
  dispense credit d1 5.00`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredit(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runCredit(opts *RootOptions, subjectID, amountArg string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	amount, err := ledger.Parse(amountArg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid amount", err)
	}
	if amount.Sign() < 0 {
		return f.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid amount", ledger.ErrNegativeAmount)
	}

	return withApp(opts, f, func(a *app) error {
		rec, err := a.store.AddCredits(cmd.Context(), subjectID, amount)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("subject %s not found", subjectID), nil)
		case err != nil:
			return f.Fail(ExitFailure, ErrCodeStore, "add credits", err)
		}

		a.logger.Info("credits added",
			"subject", subjectID,
			"amount", ledger.Format(amount),
			"credits", ledger.Format(&rec.Credits))
		return f.Emit(subjectView(rec),
			fmt.Sprintf("%s: %s credits\n", rec.SubjectID, ledger.Format(&rec.Credits)))
	})
}
