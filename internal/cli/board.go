package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
)

// BoardOptions holds flags for the board command.
type BoardOptions struct {
	*RootOptions
	At string
}

// ListCards is one list of a board view.
type ListCards struct {
	List   ir.List    `json:"list"`
	Cards  int        `json:"cards"`
	Points int        `json:"points"`
	Items  []CardView `json:"items"`
}

// CardView is a card sitting in a list.
type CardView struct {
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Points     *int      `json:"points,omitempty"`
	Since      time.Time `json:"since"`
}

// NewBoardCommand creates the board command.
func NewBoardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BoardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "board <board>",
		Short: "Show the cards in each list",
		Long: `Show every list of a board with the cards in it at an instant.

Examples:
  flowledger board b1 --db ./fl.db
  flowledger board b1 --db ./fl.db --at 2016-07-20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "instant to show (default: now)")
	return cmd
}

func runBoard(opts *BoardOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	at := time.Now().UTC()
	if opts.At != "" {
		t, err := parseTime(opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --at", err)
		}
		at = t
	}

	sess, err := openSession(opts.RootOptions, "")
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}

	view, err := boardView(ctx, tl, at)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read board", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(view, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %q at %s\n", tl.Board().ExternalID, tl.Board().Name, formatTime(at))
		for _, lc := range view {
			if len(lc.Items) == 0 {
				continue
			}
			fmt.Fprintf(w, "\n%s (%d cards, %d points)\n", lc.List.Name, lc.Cards, lc.Points)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, c := range lc.Items {
				pts := "-"
				if c.Points != nil {
					pts = fmt.Sprintf("%d", *c.Points)
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\tsince %s\n", c.ExternalID, pts, c.Name, formatTime(c.Since))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		return nil
	})
}

func boardView(ctx context.Context, tl *query.Timeline, at time.Time) ([]ListCards, error) {
	view := make([]ListCards, 0, len(tl.Lists()))
	for _, l := range tl.Lists() {
		stat, err := tl.ListStatAt(ctx, l.ID, at)
		if err != nil {
			return nil, err
		}
		cards, err := tl.CardsInList(ctx, l.ID, at)
		if err != nil {
			return nil, err
		}
		lc := ListCards{List: l, Cards: stat.Cards, Points: stat.Points, Items: make([]CardView, 0, len(cards))}
		for _, c := range cards {
			cv := CardView{ExternalID: c.Card.ExternalID, Name: c.Card.Name, Since: c.Since}
			if c.Size.Known {
				p := c.Size.Points
				cv.Points = &p
			}
			lc.Items = append(lc.Items, cv)
		}
		view = append(view, lc)
	}
	return view, nil
}

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	List string
	From string
	To   string
}

// LedgerRows is the ledger of one list.
type LedgerRows struct {
	List    ir.List       `json:"list"`
	Entries []ir.ListStat `json:"entries"`
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger <board>",
		Short: "Show a list's occupancy ledger",
		Long: `Show the running card and point totals of every list with the given
name, one row per card action that changed them.

Examples:
  flowledger ledger b1 --db ./fl.db --list "In Progress"
  flowledger ledger b1 --db ./fl.db --list Next --from 2016-07-01 --to 2016-08-01`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.List, "list", "", "list name (required)")
	cmd.Flags().StringVar(&opts.From, "from", "", "first instant (default: the beginning)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last instant (default: the end)")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func runLedger(opts *LedgerOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	from, to, err := openRange(opts.From, opts.To)
	if err != nil {
		return err
	}

	sess, err := openSession(opts.RootOptions, "")
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}
	lists := tl.Named(opts.List)
	if len(lists) == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("board %s has no list named %q", board, opts.List))
	}

	rows := make([]LedgerRows, 0, len(lists))
	for _, l := range lists {
		entries, err := tl.ListStatsIn(ctx, l.ID, from, to)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read ledger", err)
		}
		rows = append(rows, LedgerRows{List: l, Entries: entries})
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(rows, func(w io.Writer) error {
		for i, r := range rows {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s %q\n", r.List.ExternalID, r.List.Name)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "at\tdiff\tcards\tpoints\t")
			for _, e := range r.Entries {
				fmt.Fprintf(tw, "%s\t%+d\t%d\t%d\t\n", formatTime(e.At), e.Diff, e.Cards, e.Points)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		return nil
	})
}
