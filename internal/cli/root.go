package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text" | "auto"
	Config   string // path to flowledger.toml
	Database string // overrides the configured database
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "auto"}

// NewRootCommand creates the root command for the flowledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "flowledger",
		Short: "flowledger - kanban board timelines",
		Long: `Reconcile kanban board card actions into a per-list occupancy ledger
and compute cumulative flow, control chart, burndown and velocity from it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Format == "auto" {
				opts.Format = resolveAutoFormat(cmd.OutOrStdout())
			}
			return configureLogging(opts, cmd.ErrOrStderr())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text|auto)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to flowledger.toml")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewBoardCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewActionsCommand(opts))
	cmd.AddCommand(NewSprintsCommand(opts))
	cmd.AddCommand(NewMessagesCommand(opts))
	cmd.AddCommand(NewCFDCommand(opts))
	cmd.AddCommand(NewControlCommand(opts))
	cmd.AddCommand(NewBurndownCommand(opts))
	cmd.AddCommand(NewVelocityCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolveAutoFormat picks text for a terminal and json otherwise.
func resolveAutoFormat(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "text"
	}
	return "json"
}

// configureLogging installs the process logger. The config's log section
// sets the level and format; --verbose forces debug. Logs go to stderr so
// they never mix with command output.
func configureLogging(opts *RootOptions, w io.Writer) error {
	logCfg, err := logConfig(opts)
	if err != nil {
		return err
	}
	if opts.Verbose {
		logCfg.Level = "debug"
	} else if logCfg.Level == "" {
		logCfg.Level = "warn"
	}
	logger, err := logCfg.NewLogger(w)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log configuration", err)
	}
	slog.SetDefault(logger)
	return nil
}
