package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/registry"
	"github.com/IceFreez3r/OpenMS/internal/store"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Database string
	RunToken string
}

// RegisterResult holds the outcome of a register run.
type RegisterResult struct {
	Pipelines  int    `json:"pipelines"`
	ScoreTypes int    `json:"score_types"`
	Software   int    `json:"software"`
	InputFiles int    `json:"input_files"`
	Steps      int    `json:"steps"`
	RunToken   string `json:"run_token"`
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <pipelines-dir>",
		Short: "Register pipeline descriptors into a store",
		Long: `Register pipeline declarations (score types, software, input files,
processing steps) into a SQLite store.

Registration is idempotent: descriptors already present are reused, and
re-registering identical declarations changes nothing. A declaration
that conflicts with stored content (same name, different definition)
fails the whole run.

Exit codes:
  0 - Pipelines registered
  1 - Validation errors or a conflict with stored descriptors
  2 - Command error (bad directory, store not usable)

Examples:
  omsid register ./pipelines --db ./omsid.db
  omsid register ./pipelines --db ./omsid.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite store (defaults to store.path from config)")
	cmd.Flags().StringVar(&opts.RunToken, "run-token", "", "fixed run token for the import record (defaults to a generated UUIDv7)")

	return cmd
}

func runRegister(opts *RegisterOptions, pipelinesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSpecs(pipelinesDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, loadErr.Message)
		}
		_ = formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	// A pipeline that fails to parse or validate never reaches the
	// store; the failure reads the same as the validate command.
	validationErrors := collectValidationErrors(loadResult, loadErrors, formatter)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	dbPath := opts.StorePath(opts.Database)
	if dbPath == "" {
		return missingStorePath(formatter)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()

	ctx := context.Background()
	bank, err := st.LoadBank(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load store", err)
	}

	if _, err := applySpecs(bank.Registry(), loadResult.Pipelines); err != nil {
		_ = formatter.Error("E_CONFLICT", err.Error(), nil)
		return WrapExitError(ExitFailure, "registration conflicts with stored descriptors", err)
	}

	token := opts.RunToken
	if token == "" {
		token = registry.UUIDv7Generator{}.Generate()
	}

	if err := st.SaveBank(ctx, bank, token); err != nil {
		return WrapExitError(ExitCommandError, "failed to save store", err)
	}

	reg := bank.Registry()
	slog.Debug("pipelines registered",
		"store", dbPath,
		"pipelines", len(loadResult.Pipelines),
		"steps", reg.NumSteps(),
	)

	result := RegisterResult{
		Pipelines:  len(loadResult.Pipelines),
		ScoreTypes: reg.NumScoreTypes(),
		Software:   reg.NumSoftware(),
		InputFiles: reg.NumInputFiles(),
		Steps:      reg.NumSteps(),
		RunToken:   token,
	}

	return outputRegisterResult(formatter, result, dbPath)
}

// applySpecs registers every pipeline spec into the registry and
// returns the union of step ids to refs across all pipelines.
func applySpecs(reg *registry.Registry, pipelines []ident.PipelineSpec) (map[string]ident.ProcessingStepRef, error) {
	steps := make(map[string]ident.ProcessingStepRef)
	for _, p := range pipelines {
		refs, err := reg.ApplySpec(p)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
		for id, ref := range refs.Steps {
			steps[id] = ref
		}
	}
	return steps, nil
}

// missingStorePath reports the absence of any store path source.
func missingStorePath(formatter *OutputFormatter) error {
	msg := "no store path configured: pass --db or set store.path in omsid.yaml"
	_ = formatter.Error(ErrCodeNotFound, msg, nil)
	return NewExitError(ExitCommandError, msg)
}

// outputRegisterResult outputs the register outcome.
func outputRegisterResult(formatter *OutputFormatter, result RegisterResult, dbPath string) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Registered %d pipeline(s) into %s\n\n", result.Pipelines, dbPath)
	fmt.Fprintf(w, "  Score types: %d\n", result.ScoreTypes)
	fmt.Fprintf(w, "  Software:    %d\n", result.Software)
	fmt.Fprintf(w, "  Input files: %d\n", result.InputFiles)
	fmt.Fprintf(w, "  Steps:       %d\n\n", result.Steps)
	fmt.Fprintf(w, "Run token: %s\n", result.RunToken)
	return nil
}
