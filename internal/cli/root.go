package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dataver/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // overrides DATAVER_DB
	Backend  string // overrides DATAVER_BACKEND
	DuckDB   string // overrides DATAVER_DUCKDB

	// Config is loaded from the environment before any command runs,
	// with flags applied on top.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dataver CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dataver",
		Short: "dataver - versioned statistical data sets",
		Long: `Ingest statistical data sets, version them by what changed between
uploads, publish versions and query them by version label.`,
		Version: config.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.loadConfig(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $DATAVER_DB or dataver.db)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "query backend (sqlite|duckdb)")
	cmd.PersistentFlags().StringVar(&opts.DuckDB, "duckdb", "", "path to DuckDB database for the duckdb backend")

	// Authoring
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	// Versioning
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewChangesCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewDeprecateCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewRecoverCommand(opts))

	// Reading
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))

	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// loadConfig reads the environment, applies flag overrides and installs
// the logger. Logs go to stderr so JSON output stays parseable.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	if o.DuckDB != "" {
		cfg.DuckDBPath = o.DuckDB
	}
	if o.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Logger = config.SetupLogger(cfg, cmd.ErrOrStderr())
	o.Config = cfg
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
