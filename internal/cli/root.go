package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IceFreez3r/OpenMS/internal/config"
	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/store"
)

// RootOptions holds global flags and resolved configuration for all
// commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is populated from omsid.yaml and OMSID_* env vars before
	// any subcommand runs. Flags win over config values.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the omsid CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "omsid",
		Short:   "omsid - score ledger with processing provenance",
		Version: ident.ToolVersion,
		Long: `omsid records scores against identified entities together with the
processing steps that produced them, keeping the full application history
so that any score can be traced back to the software run that assigned it.

Pipelines (score types, software, input files, processing steps) are
declared in CUE and registered into a SQLite store; scores and metadata
accumulate against entity keys across runs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.Init(opts.ConfigFile)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			opts.Config = cfg

			// The flag wins when set explicitly; otherwise the config
			// file or OMSID_OUTPUT_FORMAT decides.
			if !cmd.Flags().Changed("format") && cfg.Output.Format != "" {
				opts.Format = cfg.Output.Format
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			setupLogging(cmd.ErrOrStderr(), opts.Verbose, cfg.Log.Level)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default omsid.yaml in . or $HOME)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewScoresCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// StorePath resolves the SQLite store path for a command: the --db flag
// value when set, otherwise store.path from the configuration.
func (o *RootOptions) StorePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return o.Config.Store.Path
}

// openExistingStore opens the store at path. Open creates missing
// files, so read-only commands go through this to fail on a bad path
// instead of querying a silently created empty store.
func openExistingStore(formatter *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, commandError(formatter, ErrCodeNotFound, fmt.Sprintf("store not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return st, nil
}

// setupLogging installs the default slog logger: a text handler on
// stderr at the configured level, forced to debug by --verbose.
func setupLogging(w io.Writer, verbose bool, level string) {
	lvl := parseLogLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// parseLogLevel maps a config log level string to a slog level,
// defaulting to info for unknown values.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
