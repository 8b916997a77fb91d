package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/filter"
)

// ScoresOptions holds flags for the scores command.
type ScoresOptions struct {
	*RootOptions
	Database string
	Where    string
}

// ScoreEntry is one current score of one entity.
type ScoreEntry struct {
	EntityKey string  `json:"entity_key"`
	ScoreType string  `json:"score_type"`
	Value     float64 `json:"value"`
}

// ScoresResult holds the outcome of a scores query.
type ScoresResult struct {
	Scores   []ScoreEntry `json:"scores"`
	Entities int          `json:"entities"`
	Count    int          `json:"count"`
}

// NewScoresCommand creates the scores command.
func NewScoresCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoresOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scores [entity-key]",
		Short: "List current scores from a store",
		Long: `List current scores from a store.

Each entity reports one value per score type: the value recorded by the
latest step that assigned that type. With an entity key only that
entity's scores are shown. With --where, entities are filtered by a
predicate expression over their current scores, for example:

  --where "q-value < 0.01"
  --where "q-value <= 0.05; XCorr >= 2.0"

Predicates are separated by ";" and all must hold.

Exit codes:
  0 - Query succeeded (including empty results)
  2 - Command error (store not found, malformed filter)

Examples:
  omsid scores --db ./omsid.db
  omsid scores PEP1 --db ./omsid.db
  omsid scores --db ./omsid.db --where "q-value < 0.01" --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entityKey := ""
			if len(args) > 0 {
				entityKey = args[0]
			}
			return runScores(opts, entityKey, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite store (defaults to store.path from config)")
	cmd.Flags().StringVar(&opts.Where, "where", "", "filter entities by current scores, e.g. \"q-value < 0.01\"")

	return cmd
}

func runScores(opts *ScoresOptions, entityKey string, cmd *cobra.Command) error {
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

	ctx := context.Background()

	// The filter runs in SQL against current scores; the row listing
	// then narrows to the matching keys.
	matched := map[string]bool{}
	if opts.Where != "" {
		f, err := filter.Parse(opts.Where)
		if err != nil {
			return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("invalid --where: %v", err))
		}
		keys, err := st.FilterKeys(ctx, f)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to filter entities", err)
		}
		for _, k := range keys {
			matched[k] = true
		}
	}

	rows, err := st.ListScores(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scores", err)
	}

	entries := make([]ScoreEntry, 0, len(rows))
	entities := map[string]bool{}
	for _, row := range rows {
		if entityKey != "" && row.EntityKey != entityKey {
			continue
		}
		if opts.Where != "" && !matched[row.EntityKey] {
			continue
		}
		entries = append(entries, ScoreEntry{
			EntityKey: row.EntityKey,
			ScoreType: row.ScoreType,
			Value:     row.Value,
		})
		entities[row.EntityKey] = true
	}

	result := ScoresResult{
		Scores:   entries,
		Entities: len(entities),
		Count:    len(entries),
	}
	return outputScoresResult(formatter, result)
}

// outputScoresResult outputs the score listing.
func outputScoresResult(formatter *OutputFormatter, result ScoresResult) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	if result.Count == 0 {
		fmt.Fprintln(w, "No scores found")
		return nil
	}

	fmt.Fprintf(w, "✓ %d score(s) across %d entity(ies)\n\n", result.Count, result.Entities)
	lastEntity := ""
	for _, entry := range result.Scores {
		if entry.EntityKey != lastEntity {
			fmt.Fprintf(w, "%s:\n", entry.EntityKey)
			lastEntity = entry.EntityKey
		}
		fmt.Fprintf(w, "  %s: %g\n", entry.ScoreType, entry.Value)
	}
	return nil
}
