package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/registry"
	"github.com/IceFreez3r/OpenMS/internal/store"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Database string
	RunToken string
}

// MergeResult holds the outcome of a merge run.
type MergeResult struct {
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	SourceEntities int    `json:"source_entities"`
	TotalEntities  int    `json:"total_entities"`
	RunToken       string `json:"run_token"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <source-db>",
		Short: "Merge one store into another",
		Long: `Merge one store into another.

Descriptors from the source are matched to the destination's by
content, never by numbering, so two stores built independently merge
cleanly as long as their shared names agree. Entities present in both
stores have their ledgers folded record by record; entities unique to
the source are copied.

A name that resolves to conflicting content (a score type with the
opposite orientation, a step with a different digest) aborts the merge
and leaves the destination unchanged.

Exit codes:
  0 - Merged
  1 - Merge conflict
  2 - Command error (source or destination not found)

Examples:
  omsid merge ./run2.db --db ./omsid.db
  omsid merge ./run2.db --db ./omsid.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to destination SQLite store (defaults to store.path from config)")
	cmd.Flags().StringVar(&opts.RunToken, "run-token", "", "fixed run token for the import record (defaults to a generated UUIDv7)")

	return cmd
}

func runMerge(opts *MergeOptions, sourcePath string, cmd *cobra.Command) error {
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

	ctx := context.Background()

	// The destination may be created fresh, but a typo'd source would
	// silently merge an empty store.
	src, err := openExistingStore(formatter, sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	srcBank, err := src.LoadBank(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load source store", err)
	}

	dest, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open destination store", err)
	}
	defer dest.Close()

	destBank, err := dest.LoadBank(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load destination store", err)
	}

	if err := destBank.Merge(srcBank); err != nil {
		_ = formatter.Error("E_CONFLICT", err.Error(), nil)
		return WrapExitError(ExitFailure, "merge conflicts with stored descriptors", err)
	}

	token := opts.RunToken
	if token == "" {
		token = registry.UUIDv7Generator{}.Generate()
	}

	if err := dest.SaveBank(ctx, destBank, token); err != nil {
		return WrapExitError(ExitCommandError, "failed to save destination store", err)
	}

	slog.Debug("stores merged",
		"source", sourcePath,
		"destination", dbPath,
		"source_entities", srcBank.Len(),
		"total_entities", destBank.Len(),
	)

	result := MergeResult{
		Source:         sourcePath,
		Destination:    dbPath,
		SourceEntities: srcBank.Len(),
		TotalEntities:  destBank.Len(),
		RunToken:       token,
	}
	return outputMergeResult(formatter, result)
}

// outputMergeResult outputs the merge outcome.
func outputMergeResult(formatter *OutputFormatter, result MergeResult) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Merged %d entity(ies) from %s into %s\n", result.SourceEntities, result.Source, result.Destination)
	fmt.Fprintf(w, "Total entities: %d\n", result.TotalEntities)
	fmt.Fprintf(w, "Run token: %s\n", result.RunToken)
	return nil
}
