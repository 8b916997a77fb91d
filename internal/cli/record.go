package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
	"github.com/IceFreez3r/OpenMS/internal/registry"
	"github.com/IceFreez3r/OpenMS/internal/store"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Database  string
	Pipelines string
	Step      string
	Scores    []string
	Meta      []string
	RunToken  string
}

// RecordResult holds the outcome of a record run.
type RecordResult struct {
	EntityKey string `json:"entity_key"`
	Step      string `json:"step,omitempty"`
	Scores    int    `json:"scores"`
	Meta      int    `json:"meta"`
	RunToken  string `json:"run_token"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <entity-key>",
		Short: "Record scores or metadata against an entity",
		Long: `Record scores and metadata against an entity in a store.

With --step, the named processing step is applied to the entity's
ledger carrying all --score values; recording the same step again
merges new scores into the existing record without moving it. Without
--step, each score is recorded step-free.

Step ids are labels from pipeline declarations, not stored content, so
--step requires --pipelines to resolve the id. Score types must already
be declared by a pipeline (registered in the same invocation via
--pipelines, or earlier via the register command).

Exit codes:
  0 - Recorded
  1 - Pipeline validation errors or descriptor conflicts
  2 - Command error (unknown step or score type, malformed flags)

Examples:
  omsid record PEP1 --db ./omsid.db --pipelines ./pipelines --step search --score XCorr=2.41
  omsid record PEP1 --db ./omsid.db --pipelines ./pipelines --score q-value=0.009
  omsid record PEP1 --db ./omsid.db --pipelines ./pipelines --meta charge=2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite store (defaults to store.path from config)")
	cmd.Flags().StringVar(&opts.Pipelines, "pipelines", "", "pipelines directory for resolving step ids and score types")
	cmd.Flags().StringVar(&opts.Step, "step", "", "step id to apply (requires --pipelines)")
	cmd.Flags().StringArrayVar(&opts.Scores, "score", nil, "score to record as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Meta, "meta", nil, "metadata to set as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.RunToken, "run-token", "", "fixed run token for the import record (defaults to a generated UUIDv7)")

	return cmd
}

func runRecord(opts *RecordOptions, entityKey string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Step != "" && opts.Pipelines == "" {
		return commandError(formatter, ErrCodeGeneric, "--step requires --pipelines: step ids are pipeline labels, not stored content")
	}
	if len(opts.Scores) == 0 && len(opts.Meta) == 0 && opts.Step == "" {
		return commandError(formatter, ErrCodeGeneric, "nothing to record: pass --score, --meta, or --step")
	}

	scores, err := parseScoreFlags(opts.Scores)
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, err.Error())
	}
	metaPairs, err := parseMetaFlags(opts.Meta)
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, err.Error())
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
	reg := bank.Registry()

	steps := map[string]ident.ProcessingStepRef{}
	if opts.Pipelines != "" {
		loadResult, loadErrors := LoadSpecs(opts.Pipelines, LoadModeCollectAll)
		if loadResult == nil && len(loadErrors) > 0 {
			var loadErr *LoadError
			if errors.As(loadErrors[0], &loadErr) {
				return commandError(formatter, loadErr.Code, loadErr.Message)
			}
			return commandError(formatter, ErrCodeGeneric, loadErrors[0].Error())
		}
		validationErrors := collectValidationErrors(loadResult, loadErrors, formatter)
		if len(validationErrors) > 0 {
			return outputValidationErrors(formatter, validationErrors)
		}
		if steps, err = applySpecs(reg, loadResult.Pipelines); err != nil {
			_ = formatter.Error("E_CONFLICT", err.Error(), nil)
			return WrapExitError(ExitFailure, "pipelines conflict with stored descriptors", err)
		}
	}

	stepRef := ident.NoStep
	if opts.Step != "" {
		ref, ok := steps[opts.Step]
		if !ok {
			return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("unknown step %q in %s", opts.Step, opts.Pipelines))
		}
		stepRef = ref
	}

	// Resolve every score type before touching the ledger so a typo
	// cannot leave a half-applied record.
	scoreRefs := make(map[ident.ScoreTypeRef]float64, len(scores))
	for _, name := range sortedScoreNames(scores) {
		ref, ok := reg.ScoreTypeByName(name)
		if !ok {
			return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("unknown score type %q: no registered pipeline declares it", name))
		}
		scoreRefs[ref] = scores[name]
	}

	if opts.Step != "" {
		if err := bank.AddStep(entityKey, stepRef, scoreRefs); err != nil {
			return WrapExitError(ExitCommandError, "failed to record step", err)
		}
	} else {
		for _, name := range sortedScoreNames(scores) {
			ref, _ := reg.ScoreTypeByName(name)
			if err := bank.AddScore(entityKey, ref, scores[name], ident.NoStep); err != nil {
				return WrapExitError(ExitCommandError, "failed to record score", err)
			}
		}
	}

	for _, pair := range metaPairs {
		bank.SetMeta(entityKey, pair.name, pair.value)
	}

	token := opts.RunToken
	if token == "" {
		token = registry.UUIDv7Generator{}.Generate()
	}

	if err := st.SaveBank(ctx, bank, token); err != nil {
		return WrapExitError(ExitCommandError, "failed to save store", err)
	}

	slog.Debug("entity recorded",
		"store", dbPath,
		"entity", entityKey,
		"step", opts.Step,
		"scores", len(scores),
		"meta", len(metaPairs),
	)

	result := RecordResult{
		EntityKey: entityKey,
		Step:      opts.Step,
		Scores:    len(scores),
		Meta:      len(metaPairs),
		RunToken:  token,
	}
	return outputRecordResult(formatter, result)
}

// commandError prints a formatted error and returns exit code 2.
func commandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// parseScoreFlags parses repeated name=value score flags. A name given
// twice keeps the last value, matching the ledger's overwrite rule.
func parseScoreFlags(flags []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --score %q: want name=value", f)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --score %q: %v", f, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid --score %q: value must be finite", f)
		}
		scores[name] = v
	}
	return scores, nil
}

type metaPair struct {
	name  string
	value meta.Value
}

// parseMetaFlags parses repeated name=value metadata flags, inferring
// int, then float, then string for the value.
func parseMetaFlags(flags []string) ([]metaPair, error) {
	pairs := make([]metaPair, 0, len(flags))
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --meta %q: want name=value", f)
		}
		pairs = append(pairs, metaPair{name: name, value: inferMetaValue(strings.TrimSpace(raw))})
	}
	return pairs, nil
}

// inferMetaValue picks the narrowest metadata kind that parses.
func inferMetaValue(s string) meta.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return meta.Int(i)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return meta.Float(v)
	}
	return meta.String(s)
}

// sortedScoreNames returns the score names in a deterministic order.
func sortedScoreNames(scores map[string]float64) []string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// outputRecordResult outputs the record outcome.
func outputRecordResult(formatter *OutputFormatter, result RecordResult) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	if result.Step != "" {
		fmt.Fprintf(w, "✓ Recorded %s: step %s, %d score(s), %d metadata value(s)\n",
			result.EntityKey, result.Step, result.Scores, result.Meta)
	} else {
		fmt.Fprintf(w, "✓ Recorded %s: %d score(s), %d metadata value(s)\n",
			result.EntityKey, result.Scores, result.Meta)
	}
	fmt.Fprintf(w, "Run token: %s\n", result.RunToken)
	return nil
}
