package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
	Update bool
}

// TestScenarioResult is the outcome of one scenario.
type TestScenarioResult struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Pass     bool     `json:"pass"`
	Entities int      `json:"entities"`
	Records  int      `json:"records"`
	Errors   []string `json:"errors,omitempty"`
}

// TestResult holds the outcome of a scenario suite run.
type TestResult struct {
	Scenarios []TestScenarioResult `json:"scenarios"`
	Total     int                  `json:"total"`
	Passed    int                  `json:"passed"`
	Failed    int                  `json:"failed"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run ledger conformance scenarios",
		Long: `Run ledger conformance scenarios.

Scenarios are YAML files declaring pipelines, recording operations, and
assertions. Each scenario runs against a fresh in-memory store, saves,
reloads, and asserts on the bank that comes back, so every scenario
exercises the full round trip.

A scenario with a golden file at golden/{name}.golden (next to the
scenario file) additionally compares the reloaded bank's canonical
snapshot byte for byte. --update rewrites golden files from the current
snapshots instead of comparing.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (bad directory, no scenarios)

Examples:
  omsid test ./scenarios
  omsid test ./scenarios --filter "merge_*"
  omsid test ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose file name matches the glob")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from current snapshots")

	return cmd
}

func runTest(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	info, err := os.Stat(dir)
	if err != nil {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("scenario directory not found: %s", dir))
	}
	if !info.IsDir() {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir))
	}

	paths, err := harness.FindScenarioFiles(dir)
	if err != nil {
		return commandError(formatter, ErrCodeScanError, err.Error())
	}
	if opts.Filter != "" {
		paths, err = filterScenarioPaths(paths, opts.Filter)
		if err != nil {
			return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("invalid --filter: %v", err))
		}
	}
	if len(paths) == 0 {
		// An empty suite is a valid answer, not a failure.
		if formatter.Format == "json" {
			return formatter.Success(TestResult{Scenarios: []TestScenarioResult{}})
		}
		fmt.Fprintf(formatter.Writer, "No scenarios found in %s\n", dir)
		return nil
	}

	result := TestResult{Scenarios: make([]TestScenarioResult, 0, len(paths))}
	for _, path := range paths {
		sr := runScenarioFile(formatter, path, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
		result.Total++
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := outputTestResult(formatter, result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

// runScenarioFile loads and runs one scenario, including its golden
// comparison when a golden file exists.
func runScenarioFile(formatter *OutputFormatter, path string, update bool) TestScenarioResult {
	sr := TestScenarioResult{Name: filepath.Base(path), Path: path}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Name = scenario.Name

	formatter.VerboseLog("Running scenario: %s", scenario.Name)
	result, err := harness.Run(scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}

	sr.Pass = result.Pass
	sr.Entities = result.Entities
	sr.Records = result.Records
	sr.Errors = result.Errors

	goldenPath := filepath.Join(filepath.Dir(path), "golden", scenario.Name+".golden")
	if update {
		if err := writeGoldenFile(goldenPath, result.Snapshot); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
		}
		return sr
	}
	if golden, err := os.ReadFile(goldenPath); err == nil {
		if !bytes.Equal(golden, result.Snapshot) {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("snapshot does not match golden file %s (rerun with --update to accept)", goldenPath))
		}
	}
	return sr
}

// filterScenarioPaths keeps the paths whose base name matches pattern.
func filterScenarioPaths(paths []string, pattern string) ([]string, error) {
	var out []string
	for _, path := range paths {
		ok, err := filepath.Match(pattern, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, path)
		}
	}
	return out, nil
}

// writeGoldenFile writes snapshot bytes, creating the golden directory.
func writeGoldenFile(path string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, snapshot, 0644)
}

// outputTestResult outputs the suite outcome.
func outputTestResult(formatter *OutputFormatter, result TestResult) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		status := "ok"
		var cliErr *CLIError
		if result.Failed > 0 {
			status = "error"
			cliErr = &CLIError{
				Code:    ErrCodeGeneric,
				Message: fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total),
			}
		}
		return encoder.Encode(CLIResponse{Status: status, Data: result, Error: cliErr})
	}

	w := formatter.Writer
	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, msg := range sr.Errors {
			fmt.Fprintf(w, "    %s\n", msg)
		}
	}
	fmt.Fprintf(w, "\n%d/%d scenario(s) passed\n", result.Passed, result.Total)
	return nil
}
