package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/config"
	"github.com/roach88/flowledger/internal/engine"
	"github.com/roach88/flowledger/internal/source"
)

// RefreshOptions holds flags for the refresh command.
type RefreshOptions struct {
	*RootOptions
	All     bool
	Events  string
	Cards   string
	Dues    string
	Name    string
	Profile string
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh [board]",
		Short: "Reconcile new card actions into the ledger",
		Long: `Fetch the board's card actions since its last refresh and reconcile them.

A board named on the command line reads its actions from --events, or
from the config's [[boards]] entry with the same id. --all refreshes every
configured board.

Exit codes:
  0 - Refresh complete
  1 - The event source was unavailable; the refresh was deferred
  2 - Command error (missing database, unreadable profile, etc.)

Examples:
  flowledger refresh b1 --db ./fl.db --events ./b1.json
  flowledger refresh --config ./flowledger.toml --all`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "refresh every configured board")
	cmd.Flags().StringVar(&opts.Events, "events", "", "board file of upstream actions")
	cmd.Flags().StringVar(&opts.Cards, "cards", "", "JSON file of card states for the first refresh")
	cmd.Flags().StringVar(&opts.Dues, "due-dates", "", "JSON file of card due dates")
	cmd.Flags().StringVar(&opts.Name, "name", "", "board display name")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "CUE board profile (overrides config)")
	return cmd
}

func runRefresh(opts *RefreshOptions, args []string, cmd *cobra.Command) error {
	ctx := context.Background()

	boards, err := refreshTargets(opts, args)
	if err != nil {
		return err
	}

	sess, err := openSession(opts.RootOptions, opts.Profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	eng := engine.New(sess.store)
	reports := make([]*engine.Report, 0, len(boards))
	deferred := 0
	for _, b := range boards {
		f.VerboseLog("refreshing %s from %s", b.ID, b.Events)
		src := boardSource(b)
		rep, err := eng.Refresh(ctx, engine.RefreshRequest{
			Board:     b.ID,
			BoardName: b.Name,
			Source:    src,
			Dues:      src,
			Profile:   sess.profile,
		})
		if engine.IsStorageError(err) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("refresh %s stopped; the next refresh resumes after the last committed action", b.ID), err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("refresh %s failed", b.ID), err)
		}
		if rep.Deferred {
			deferred++
		}
		reports = append(reports, rep)
	}

	if err := f.Render(reports, func(w io.Writer) error {
		for _, rep := range reports {
			writeReport(w, rep, opts.Verbose)
		}
		return nil
	}); err != nil {
		return err
	}

	if deferred > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d board(s) deferred: event source unavailable", deferred))
	}
	return nil
}

// refreshTargets resolves which boards to refresh and where their
// actions come from.
func refreshTargets(opts *RefreshOptions, args []string) ([]config.BoardConfig, error) {
	var cfg *config.Config
	if opts.Config != "" {
		c, err := loadConfig(opts.RootOptions)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	if opts.All {
		if len(args) > 0 {
			return nil, NewExitError(ExitCommandError, "--all takes no board argument")
		}
		if cfg == nil || len(cfg.Boards) == 0 {
			return nil, NewExitError(ExitCommandError, "--all needs a --config with [[boards]]")
		}
		return cfg.Boards, nil
	}

	if len(args) == 0 {
		return nil, NewExitError(ExitCommandError, "a board id or --all is required")
	}
	b := config.BoardConfig{ID: args[0]}
	if cfg != nil {
		if configured, ok := cfg.Board(args[0]); ok {
			b = configured
		}
	}
	if opts.Events != "" {
		b.Events = opts.Events
	}
	if opts.Cards != "" {
		b.Cards = opts.Cards
	}
	if opts.Dues != "" {
		b.Dues = opts.Dues
	}
	if opts.Name != "" {
		b.Name = opts.Name
	}
	if b.Events == "" {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no events file for board %s: pass --events", b.ID))
	}
	return []config.BoardConfig{b}, nil
}

func boardSource(b config.BoardConfig) *source.File {
	var opts []source.FileOption
	if b.Cards != "" {
		opts = append(opts, source.WithCards(b.Cards))
	}
	if b.Dues != "" {
		opts = append(opts, source.WithDueDates(b.Dues))
	}
	opts = append(opts, source.WithLogger(slog.Default().With("board", b.ID)))
	return source.NewFile(b.Events, opts...)
}

func writeReport(w io.Writer, rep *engine.Report, verbose bool) {
	status := "refreshed"
	if rep.Deferred {
		status = "deferred"
	}
	fmt.Fprintf(w, "%s %s (run %s)\n", rep.Board.ExternalID, status, rep.RunID)
	fmt.Fprintf(w, "  fetched %d, snapshot %d, applied %d, skipped %d, rejected %d, dropped %d, conflicts %d\n",
		rep.Fetched, rep.Snapshot, rep.Applied, rep.Skipped, rep.Rejected, rep.Dropped, rep.Conflicts)
	for _, sp := range rep.Sprints {
		fmt.Fprintf(w, "  sprint %d %q %s .. %s\n", sp.Number, sp.Name, formatTime(sp.Start), formatTime(sp.End))
	}
	if verbose {
		for _, warning := range rep.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
	} else if len(rep.Warnings) > 0 {
		fmt.Fprintf(w, "  %d warning(s), use --verbose to list\n", len(rep.Warnings))
	}
}
