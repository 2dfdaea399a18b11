package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dispense/internal/ir"
	"github.com/roach88/dispense/internal/ledger"
	"github.com/roach88/dispense/internal/store"
)

// SubjectView is the JSON shape of a subject record.
type SubjectView struct {
	SubjectID string       `json:"subject_id"`
	Credits   string       `json:"credits"`
	Requests  []ir.Request `json:"requests"`
	Version   int64        `json:"version"`
}

func subjectView(rec ir.Record) SubjectView {
	requests := rec.Requests
	if requests == nil {
		requests = []ir.Request{}
	}
	return SubjectView{
		SubjectID: rec.SubjectID,
		Credits:   ledger.Format(&rec.Credits),
		Requests:  requests,
		Version:   rec.Version,
	}
}

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Credits string
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <subject>",
		Short: "Create a subject record",
		Long: `Create a subject record with an opening credit balance and no
outstanding requests.

Examples:
  dispense seed d1 --credits 2.00
  dispense seed d1 --credits 2.00 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Credits, "credits", "0.00", "opening credit balance")

	return cmd
}

func runSeed(opts *SeedOptions, subjectID string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	credits, err := ledger.Parse(opts.Credits)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid --credits", err)
	}

	return withApp(opts.RootOptions, f, func(a *app) error {
		rec, err := a.store.Create(cmd.Context(), subjectID, credits)
		switch {
		case errors.Is(err, store.ErrExists):
			return f.Fail(ExitFailure, ErrCodeExists, fmt.Sprintf("subject %s already exists", subjectID), nil)
		case errors.Is(err, ledger.ErrNegativeAmount):
			return f.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid --credits", err)
		case err != nil:
			return f.Fail(ExitFailure, ErrCodeStore, "create subject", err)
		}

		f.VerboseLog("seeded %s at version %d", rec.SubjectID, rec.Version)
		return f.Emit(subjectView(rec),
			fmt.Sprintf("Seeded %s with %s credits\n", rec.SubjectID, ledger.Format(&rec.Credits)))
	})
}
