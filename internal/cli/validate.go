package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Watch bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <pipelines-dir>",
		Short: "Validate pipeline specs",
		Long: `Validate CUE pipeline declarations against the schema rules.

Parses every pipeline and checks declarations for duplicate names,
undeclared references, malformed timestamps and checksums. With --watch
the directory is revalidated whenever a CUE file changes, until
interrupted.

Exit codes:
  0 - All pipelines valid (always 0 when --watch exits on interrupt)
  1 - Validation errors found
  2 - Command error (directory not found, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "revalidate on file changes until interrupted")

	return cmd
}

func runValidate(opts *ValidateOptions, pipelinesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	err := validateRound(formatter, pipelinesDir)
	if !opts.Watch {
		return err
	}

	// Watch mode is a development loop: rounds print their results and
	// the command exits cleanly on interrupt regardless of the last
	// round's outcome.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return watchValidate(ctx, formatter, pipelinesDir)
}

// validateRound runs one full validation pass and prints its outcome.
func validateRound(formatter *OutputFormatter, pipelinesDir string) error {
	loadResult, loadErrors := LoadSpecs(pipelinesDir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, pipelinesDir)

	validationErrors := collectValidationErrors(loadResult, loadErrors, formatter)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter)
}

// collectValidationErrors runs schema validation over every compiled
// pipeline and folds load-stage errors into the same list.
func collectValidationErrors(loadResult *LoadResult, loadErrors []error, formatter *OutputFormatter) []compiler.ValidationError {
	var allErrors []compiler.ValidationError

	for i := range loadResult.Pipelines {
		p := &loadResult.Pipelines[i]
		formatter.VerboseLog("Validating pipeline: %s", p.Name)
		allErrors = append(allErrors, compiler.Validate(p)...)
	}

	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			allErrors = append(allErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
			})
			continue
		}
		allErrors = append(allErrors, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    ErrCodeGeneric,
		})
	}

	return allErrors
}

// watchValidate revalidates the directory whenever a CUE file changes.
// Events are debounced so an editor's save burst triggers one round.
func watchValidate(ctx context.Context, formatter *OutputFormatter, pipelinesDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create file watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(pipelinesDir); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to watch %s", pipelinesDir), err)
	}

	fmt.Fprintf(formatter.GetErrWriter(), "Watching %s for changes (Ctrl-C to stop)\n", pipelinesDir)

	const debounce = 250 * time.Millisecond
	var pending bool
	var last time.Time
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".cue" {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending = true
				last = time.Now()
			}

		case <-ticker.C:
			if pending && time.Since(last) >= debounce {
				pending = false
				fmt.Fprintf(formatter.GetErrWriter(), "Change detected, revalidating %s\n", pipelinesDir)
				// Round results are printed; the loop keeps watching
				// whether the round passed or failed.
				_ = validateRound(formatter, pipelinesDir)
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watch errors are non-fatal; the next event round retries.
		}
	}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: true}
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ All pipelines valid")
	return nil
}

// outputValidateError outputs a single load-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
	fmt.Fprintln(formatter.Writer)

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidatePipelinesDir validates all pipeline specs in a directory.
// This is a helper function for external callers.
func ValidatePipelinesDir(pipelinesDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadSpecs(pipelinesDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	// Create a silent formatter for the collection pass
	silentFormatter := &OutputFormatter{Format: "text", Verbose: false, Writer: io.Discard}
	return collectValidationErrors(loadResult, loadErrors, silentFormatter), nil
}
