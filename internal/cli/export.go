package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Output   string
}

// ExportResult holds the outcome of an export run.
type ExportResult struct {
	Path     string          `json:"path,omitempty"`
	Entities int             `json:"entities"`
	Digest   string          `json:"digest"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a store as a canonical snapshot",
		Long: `Export a store as a canonical snapshot.

The snapshot is deterministic JSON: entities sorted by key, refs
resolved to names, score maps in a fixed order. Two stores holding the
same results export byte-identical snapshots regardless of insertion
order, so snapshots diff cleanly and hash stably.

Without --output the snapshot is written to stdout.

Exit codes:
  0 - Exported
  2 - Command error (store not found, write failure)

Examples:
  omsid export --db ./omsid.db > snapshot.json
  omsid export --db ./omsid.db -o snapshot.json
  omsid export --db ./omsid.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite store (defaults to store.path from config)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the snapshot to a file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
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

	bank, err := st.LoadBank(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load store", err)
	}

	snapshot, err := bank.Snapshot()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build snapshot", err)
	}
	digest, err := bank.Digest()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest snapshot", err)
	}

	result := ExportResult{Entities: bank.Len(), Digest: digest}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, snapshot, 0644); err != nil {
			return commandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("failed to write snapshot: %v", err))
		}
		result.Path = opts.Output
		return outputExportResult(formatter, result)
	}

	if formatter.Format == "json" {
		result.Snapshot = snapshot
		return outputExportResult(formatter, result)
	}

	// Raw snapshot bytes on stdout so the output pipes into jq or a
	// file without unwrapping.
	if _, err := formatter.Writer.Write(snapshot); err != nil {
		return WrapExitError(ExitCommandError, "failed to write snapshot", err)
	}
	fmt.Fprintln(formatter.Writer)
	return nil
}

// outputExportResult outputs the export confirmation.
func outputExportResult(formatter *OutputFormatter, result ExportResult) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Exported %d entity(ies) to %s\n", result.Entities, result.Path)
	fmt.Fprintf(w, "Digest: %s\n", result.Digest)
	return nil
}
