package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a store's integrity hashes",
		Long: `Verify a store's integrity hashes.

Every result carries a content hash recorded at save time. Verification
reloads the store, recomputes each hash from the stored rows, and
reports any result whose rows changed outside a save. Step descriptors
are checked on load: a step whose stored digest no longer matches its
content fails verification outright.

Exit codes:
  0 - Store is clean
  1 - Hash mismatches or corrupted descriptors found
  2 - Command error (store not found)

Examples:
  omsid verify --db ./omsid.db
  omsid verify --db ./omsid.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite store (defaults to store.path from config)")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	dbPath := opts.StorePath(opts.Database)
	if dbPath == "" {
		return missingStorePath(formatter)
	}

	st, err := openExistingStore(formatter, dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := st.VerifyBank(context.Background())
	if err != nil {
		// Loading fails on a step whose stored digest does not match
		// its content, which is itself a verification failure.
		_ = formatter.Error("E_VERIFY", err.Error(), nil)
		return WrapExitError(ExitFailure, "store failed verification", err)
	}

	if err := outputVerifyReport(formatter, dbPath, report); err != nil {
		return err
	}
	if !report.Clean {
		return NewExitError(ExitFailure, fmt.Sprintf("verification found %d mismatch(es)", len(report.Mismatches)))
	}
	return nil
}

// outputVerifyReport outputs the verification report.
func outputVerifyReport(formatter *OutputFormatter, dbPath string, report *store.VerifyReport) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		status := "ok"
		var cliErr *CLIError
		if !report.Clean {
			status = "error"
			cliErr = &CLIError{
				Code:    "E_VERIFY",
				Message: fmt.Sprintf("%d result(s) failed verification", len(report.Mismatches)),
			}
		}
		return encoder.Encode(CLIResponse{Status: status, Data: report, Error: cliErr})
	}

	w := formatter.Writer
	if report.Clean {
		fmt.Fprintf(w, "✓ Store %s is clean: %d result(s), %d record(s)\n", dbPath, report.Results, report.Records)
		return nil
	}

	fmt.Fprintf(w, "✗ Store %s failed verification\n\n", dbPath)
	for _, m := range report.Mismatches {
		fmt.Fprintf(w, "  %s:\n", m.EntityKey)
		fmt.Fprintf(w, "    stored:   %s\n", m.Stored)
		fmt.Fprintf(w, "    computed: %s\n", m.Computed)
	}
	fmt.Fprintf(w, "\n%d of %d result(s) mismatched\n", len(report.Mismatches), report.Results)
	return nil
}
