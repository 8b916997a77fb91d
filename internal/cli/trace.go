package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
	"github.com/IceFreez3r/OpenMS/internal/registry"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Score    string
}

// TraceStepInfo describes the processing step behind a ledger record.
type TraceStepInfo struct {
	Software    string   `json:"software"`
	Version     string   `json:"version"`
	CompletedAt string   `json:"completed_at,omitempty"`
	Actions     []string `json:"actions,omitempty"`
	InputFiles  []string `json:"input_files,omitempty"`
	Digest      string   `json:"digest"`
}

// TraceScore is one (score type, value) pair in a ledger record.
type TraceScore struct {
	ScoreType string  `json:"score_type"`
	Value     float64 `json:"value"`
}

// TraceRecord is one ledger record in application order. Step is nil
// for step-free scores.
type TraceRecord struct {
	Position int            `json:"position"`
	Step     *TraceStepInfo `json:"step,omitempty"`
	Scores   []TraceScore   `json:"scores"`
}

// TraceCurrent is one current score with the record that won it.
type TraceCurrent struct {
	ScoreType    string  `json:"score_type"`
	Value        float64 `json:"value"`
	HigherBetter bool    `json:"higher_better"`
	Position     int     `json:"position"`
}

// TraceStats summarizes an entity's ledger.
type TraceStats struct {
	Records    int `json:"records"`
	ScoreTypes int `json:"score_types"`
	MetaKeys   int `json:"meta_keys"`
}

// TraceResult holds the full provenance trace of one entity.
type TraceResult struct {
	EntityKey string                `json:"entity_key"`
	Found     bool                  `json:"found"`
	History   []TraceRecord         `json:"history"`
	Current   []TraceCurrent        `json:"current"`
	Meta      map[string]meta.Value `json:"meta,omitempty"`
	Digest    string                `json:"digest,omitempty"`
	Stats     TraceStats            `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <entity-key>",
		Short: "Show an entity's full provenance trace",
		Long: `Show an entity's full provenance trace.

The history section lists every ledger record in application order:
which software ran, over which inputs, and the scores it assigned.
The current section lists one value per score type, the one from the
latest record that assigned it, with the record's position.

Exit codes:
  0 - Trace retrieved (including entity not found)
  2 - Command error (store not found, unknown score type)

Examples:
  omsid trace PEP1 --db ./omsid.db
  omsid trace PEP1 --db ./omsid.db --score q-value
  omsid trace PEP1 --db ./omsid.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite store (defaults to store.path from config)")
	cmd.Flags().StringVar(&opts.Score, "score", "", "restrict the trace to one score type")

	return cmd
}

func runTrace(opts *TraceOptions, entityKey string, cmd *cobra.Command) error {
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
	reg := bank.Registry()

	r, ok := bank.Lookup(entityKey)
	if !ok {
		return outputTraceNotFound(formatter, entityKey)
	}

	scoreFilter := ident.ScoreTypeRef(0)
	if opts.Score != "" {
		ref, found := reg.ScoreTypeByName(opts.Score)
		if !found {
			return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("unknown score type %q: no registered pipeline declares it", opts.Score))
		}
		scoreFilter = ref
	}

	result, err := buildTrace(reg, bank, r, entityKey, scoreFilter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build trace", err)
	}
	return outputTraceResult(formatter, result)
}

// buildTrace walks the ledger and resolves every ref to its descriptor.
func buildTrace(reg *registry.Registry, bank *registry.Bank, r *ident.ScoredProcessingResult, entityKey string, scoreFilter ident.ScoreTypeRef) (TraceResult, error) {
	ledger := r.Steps()

	// Positions are 1-based in application order and shared between the
	// history and current sections.
	positions := make(map[ident.ProcessingStepRef]int, ledger.Len())

	history := make([]TraceRecord, 0, ledger.Len())
	for i := 0; i < ledger.Len(); i++ {
		rec := ledger.At(i)
		positions[rec.Step] = i + 1

		if scoreFilter != 0 {
			if _, has := rec.Scores[scoreFilter]; !has {
				continue
			}
		}

		scores := make([]TraceScore, 0, len(rec.Scores))
		for _, entry := range rec.SortedScores() {
			if scoreFilter != 0 && entry.Type != scoreFilter {
				continue
			}
			st, err := reg.ScoreType(entry.Type)
			if err != nil {
				return TraceResult{}, err
			}
			scores = append(scores, TraceScore{ScoreType: st.Name, Value: entry.Value})
		}

		record := TraceRecord{Position: i + 1, Scores: scores}
		if rec.Step != ident.NoStep {
			info, err := traceStepInfo(reg, rec.Step)
			if err != nil {
				return TraceResult{}, err
			}
			record.Step = info
		}
		history = append(history, record)
	}

	current := make([]TraceCurrent, 0, reg.NumScoreTypes())
	for n := 1; n <= reg.NumScoreTypes(); n++ {
		ref := ident.ScoreTypeRef(n)
		if scoreFilter != 0 && ref != scoreFilter {
			continue
		}
		v, stepRef, has := r.ScoreAndStep(ref)
		if !has {
			continue
		}
		st, err := reg.ScoreType(ref)
		if err != nil {
			return TraceResult{}, err
		}
		current = append(current, TraceCurrent{
			ScoreType:    st.Name,
			Value:        v,
			HigherBetter: st.HigherBetter,
			Position:     positions[stepRef],
		})
	}

	metaValues := map[string]meta.Value{}
	for _, k := range r.MetaKeys() {
		name, found := reg.MetaKeys().Name(k)
		if !found {
			continue
		}
		if v, has := r.MetaValue(k); has {
			metaValues[name] = v
		}
	}

	digest, err := bank.ResultDigest(entityKey)
	if err != nil {
		return TraceResult{}, err
	}

	return TraceResult{
		EntityKey: entityKey,
		Found:     true,
		History:   history,
		Current:   current,
		Meta:      metaValues,
		Digest:    digest,
		Stats: TraceStats{
			Records:    ledger.Len(),
			ScoreTypes: len(current),
			MetaKeys:   len(metaValues),
		},
	}, nil
}

// traceStepInfo resolves a step ref into display form.
func traceStepInfo(reg *registry.Registry, ref ident.ProcessingStepRef) (*TraceStepInfo, error) {
	step, err := reg.Step(ref)
	if err != nil {
		return nil, err
	}
	sw, err := reg.Software(step.Software)
	if err != nil {
		return nil, err
	}
	digest, err := reg.StepDigest(ref)
	if err != nil {
		return nil, err
	}

	inputs := make([]string, 0, len(step.InputFiles))
	for _, fileRef := range step.InputFiles {
		file, err := reg.InputFile(fileRef)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, file.Path)
	}

	return &TraceStepInfo{
		Software:    sw.Name,
		Version:     sw.Version,
		CompletedAt: step.CompletedAt,
		Actions:     step.Actions,
		InputFiles:  inputs,
		Digest:      digest,
	}, nil
}

// outputTraceNotFound reports a missing entity. Missing is a valid
// query answer, so the exit code stays 0.
func outputTraceNotFound(formatter *OutputFormatter, entityKey string) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: TraceResult{
			EntityKey: entityKey,
			History:   []TraceRecord{},
			Current:   []TraceCurrent{},
		}})
	}
	fmt.Fprintf(formatter.Writer, "No result found for entity: %s\n", entityKey)
	return nil
}

// outputTraceResult outputs the trace.
func outputTraceResult(formatter *OutputFormatter, result TraceResult) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Entity: %s\n", result.EntityKey)
	fmt.Fprintf(w, "Digest: %s\n", result.Digest)

	fmt.Fprintf(w, "\n=== History ===\n")
	if len(result.History) == 0 {
		fmt.Fprintln(w, "  (no records)")
	}
	for _, rec := range result.History {
		if rec.Step == nil {
			fmt.Fprintf(w, "[%d] (step-free)\n", rec.Position)
		} else {
			line := fmt.Sprintf("[%d] %s %s", rec.Position, rec.Step.Software, rec.Step.Version)
			if len(rec.Step.Actions) > 0 {
				line += " - " + strings.Join(rec.Step.Actions, ", ")
			}
			if rec.Step.CompletedAt != "" {
				line += " (" + rec.Step.CompletedAt + ")"
			}
			fmt.Fprintln(w, line)
			if len(rec.Step.InputFiles) > 0 {
				fmt.Fprintf(w, "      inputs: %s\n", strings.Join(rec.Step.InputFiles, ", "))
			}
		}
		for _, s := range rec.Scores {
			fmt.Fprintf(w, "      %s: %g\n", s.ScoreType, s.Value)
		}
	}

	fmt.Fprintf(w, "\n=== Current Scores ===\n")
	if len(result.Current) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, c := range result.Current {
		orientation := "lower is better"
		if c.HigherBetter {
			orientation = "higher is better"
		}
		fmt.Fprintf(w, "  %s: %g (%s, record %d)\n", c.ScoreType, c.Value, orientation, c.Position)
	}

	if len(result.Meta) > 0 {
		fmt.Fprintf(w, "\n=== Metadata ===\n")
		names := make([]string, 0, len(result.Meta))
		for name := range result.Meta {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %s\n", name, formatMetaValue(result.Meta[name]))
		}
	}

	fmt.Fprintf(w, "\n=== Stats ===\n")
	fmt.Fprintf(w, "  Records: %d\n", result.Stats.Records)
	fmt.Fprintf(w, "  Score types: %d\n", result.Stats.ScoreTypes)
	fmt.Fprintf(w, "  Metadata keys: %d\n", result.Stats.MetaKeys)
	return nil
}

// formatMetaValue renders a metadata value for text output.
func formatMetaValue(v meta.Value) string {
	switch val := v.(type) {
	case meta.String:
		return string(val)
	case meta.Int:
		return strconv.FormatInt(int64(val), 10)
	case meta.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case meta.StringList:
		return strings.Join(val, ", ")
	case meta.IntList:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(parts, ", ")
	case meta.FloatList:
		parts := make([]string, len(val))
		for i, f := range val {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
