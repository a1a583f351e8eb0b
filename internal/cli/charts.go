package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/analytics"
	"github.com/roach88/flowledger/internal/ir"
)

// defaultWindow is the range a chart covers without --from.
const defaultWindow = 30 * 24 * time.Hour

// ChartOptions holds the flags shared by the chart commands.
type ChartOptions struct {
	*RootOptions
	From    string
	To      string
	Profile string
}

func (o *ChartOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.From, "from", "", "range start (default: 30 days before --to)")
	cmd.Flags().StringVar(&o.To, "to", "", "range end (default: now)")
	cmd.Flags().StringVar(&o.Profile, "profile", "", "CUE board profile (overrides config)")
}

func (o *ChartOptions) rangeAt(now time.Time) (time.Time, time.Time, error) {
	return timeRange(o.From, o.To, defaultWindow, now)
}

// CFDOptions holds flags for the cfd command.
type CFDOptions struct {
	ChartOptions
	Step   time.Duration
	Metric string
	Lists  string
}

// NewCFDCommand creates the cfd command.
func NewCFDCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CFDOptions{ChartOptions: ChartOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "cfd <board>",
		Short: "Cumulative flow",
		Long: `Sample the card or point totals of the profile's cumulative lists at
every step of a range.

Examples:
  flowledger cfd b1 --db ./fl.db
  flowledger cfd b1 --db ./fl.db --metric points --step 12h --lists "Next,In Progress"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCFD(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().DurationVar(&opts.Step, "step", 24*time.Hour, "sample interval")
	cmd.Flags().StringVar(&opts.Metric, "metric", string(ir.MetricCards), "cards or points")
	cmd.Flags().StringVar(&opts.Lists, "lists", "", "comma separated list names (default: the profile's cumulative lists)")
	return cmd
}

func runCFD(opts *CFDOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	metric := ir.Metric(opts.Metric)
	if metric != ir.MetricCards && metric != ir.MetricPoints {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --metric %q: must be cards or points", opts.Metric))
	}
	from, to, err := opts.rangeAt(time.Now())
	if err != nil {
		return err
	}

	sess, err := openSession(opts.RootOptions, opts.Profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}
	lists := sess.profile.Cumulative
	if opts.Lists != "" {
		lists = splitNames(opts.Lists)
	}

	res, err := analytics.CumulativeFlow(ctx, tl, analytics.CumulativeRequest{
		Lists:  lists,
		From:   from,
		To:     to,
		Step:   opts.Step,
		Metric: metric,
	})
	if err != nil {
		return analyticsError("cumulative flow failed", err)
	}
	warnMissing(cmd, res.Missing)

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(res, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "at\t%s\t\n", strings.Join(res.Lists, "\t"))
		for _, tick := range res.Ticks {
			cells := make([]string, len(res.Lists))
			for i, name := range res.Lists {
				cells[i] = fmt.Sprintf("%d", tick.Values[name])
			}
			fmt.Fprintf(tw, "%s\t%s\t\n", formatTime(tick.At), strings.Join(cells, "\t"))
		}
		return tw.Flush()
	})
}

// NewControlCommand creates the control command.
func NewControlCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "control <board>",
		Short: "Control chart of cycle times",
		Long: `List the cards that passed through every workflow checkpoint of the
profile within a range, with the time each took.

Examples:
  flowledger control b1 --db ./fl.db --from 2016-07-01 --to 2016-09-01`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControl(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	return cmd
}

func runControl(opts *ChartOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	from, to, err := opts.rangeAt(time.Now())
	if err != nil {
		return err
	}

	sess, err := openSession(opts.RootOptions, opts.Profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}

	res, err := analytics.ControlChart(ctx, tl, sess.profile.Workflow, from, to)
	if err != nil {
		return analyticsError("control chart failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(res, func(w io.Writer) error {
		if len(res.Cards) == 0 {
			fmt.Fprintln(w, "No completed cards")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, c := range res.Cards {
			fmt.Fprintf(tw, "%s\t%s\t%.2fd\t%d\t%s\n", formatTime(c.Start), formatTime(c.End), c.Days, c.Points, c.Name)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d cards, min %s, max %s, mean %s\n", len(res.Cards), res.Min, res.Max, res.Mean)
		return nil
	})
}

// warnMissing notes requested lists the board does not have. They read as
// empty in the output.
func warnMissing(cmd *cobra.Command, names []string) {
	if len(names) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: no list named %s on this board\n", strings.Join(names, ", "))
	}
}

// BurndownOptions holds flags for the burndown command.
type BurndownOptions struct {
	ChartOptions
	Sprint   int
	Baseline int
}

// NewBurndownCommand creates the burndown command.
func NewBurndownCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BurndownOptions{ChartOptions: ChartOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "burndown <board>",
		Short: "Daily burndown of a sprint or range",
		Long: `Show the points done each day and the points still in progress.

With --sprint the range is the sprint's and the done side is its bound
completed list when it has one. Otherwise the profile's completed lists
are used. A sprint's ideal line starts at its committed points: the
points in the profile's commitment lists when the sprint started.

Examples:
  flowledger burndown b1 --db ./fl.db --sprint 7
  flowledger burndown b1 --db ./fl.db --from 2016-07-12 --to 2016-07-26 --baseline 40`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBurndown(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().IntVar(&opts.Sprint, "sprint", 0, "sprint number")
	cmd.Flags().IntVar(&opts.Baseline, "baseline", -1, "ideal line start (default: the sprint's committed points, else in-progress points at the start)")
	return cmd
}

func runBurndown(opts *BurndownOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()
	now := time.Now().UTC()

	if opts.Sprint != 0 && (opts.From != "" || opts.To != "") {
		return NewExitError(ExitCommandError, "--sprint and --from/--to are exclusive")
	}

	sess, err := openSession(opts.RootOptions, opts.Profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}

	req := analytics.BurndownRequest{
		Now:        now,
		InProgress: sess.profile.InProgress,
		Completed:  sess.profile.Completed,
	}
	if opts.Baseline >= 0 {
		b := opts.Baseline
		req.Baseline = &b
	}

	if opts.Sprint != 0 {
		sp, ok, err := sess.store.SprintByNumber(ctx, tl.Board().ID, opts.Sprint)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read sprint", err)
		}
		if !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("board %s has no sprint %d", board, opts.Sprint))
		}
		req.From, req.To = sp.Start, sp.End
		if req.Baseline == nil {
			pts, err := analytics.SprintMetrics(ctx, tl, sp, sess.profile.Commitment)
			if err != nil {
				return analyticsError("sprint commitment failed", err)
			}
			req.Baseline = &pts.Committed
		}
		if sp.CompletedListID != nil {
			for _, l := range tl.Lists() {
				if l.ID == *sp.CompletedListID {
					req.Completed = []string{l.Name}
				}
			}
		}
	} else {
		if req.From, req.To, err = opts.rangeAt(now); err != nil {
			return err
		}
	}

	res, err := analytics.Burndown(ctx, tl, req)
	if err != nil {
		return analyticsError("burndown failed", err)
	}
	warnMissing(cmd, res.Missing)

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Render(res, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "at\tdone\tnot done\tideal\t")
		for _, t := range res.Ticks {
			ideal := ""
			if t.Ideal != nil {
				ideal = fmt.Sprintf("%d", *t.Ideal)
			}
			if t.Future {
				fmt.Fprintf(tw, "%s\t\t\t%s\t\n", formatTime(t.At), ideal)
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t\n", formatTime(t.At), t.Done, t.NotDone, ideal)
			if opts.Verbose {
				for _, c := range t.DoneCards {
					fmt.Fprintf(tw, "\t(%d)\t%s\t\t\n", c.Points, c.Name)
				}
			}
		}
		return tw.Flush()
	})
}

// VelocityOptions holds flags for the velocity command.
type VelocityOptions struct {
	*RootOptions
	Count   int
	Profile string
}

// NewVelocityCommand creates the velocity command.
func NewVelocityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VelocityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "velocity <board>",
		Short: "Committed and done points per sprint",
		Long: `Show the committed and done points of the most recent sprints, oldest
first, with a running average of done points.

Examples:
  flowledger velocity b1 --db ./fl.db
  flowledger velocity b1 --db ./fl.db --count 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVelocity(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 6, "number of sprints (0 for all)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "CUE board profile (overrides config)")
	return cmd
}

func runVelocity(opts *VelocityOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	if opts.Count < 0 {
		return NewExitError(ExitCommandError, "--count must not be negative")
	}

	sess, err := openSession(opts.RootOptions, opts.Profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}
	sprints, err := tl.Sprints(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sprints", err)
	}
	if opts.Count > 0 && len(sprints) > opts.Count {
		sprints = sprints[:opts.Count]
	}

	points := make([]analytics.SprintPoints, 0, len(sprints))
	for _, sp := range sprints {
		p, err := analytics.SprintMetrics(ctx, tl, sp, sess.profile.Commitment)
		if err != nil {
			return analyticsError(fmt.Sprintf("sprint %d metrics failed", sp.Number), err)
		}
		points = append(points, p)
	}
	series := analytics.Velocity(points)

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(series, func(w io.Writer) error {
		if len(series) == 0 {
			fmt.Fprintln(w, "No sprints")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "sprint\tcommitted\tdone\taverage")
		for _, p := range series {
			fmt.Fprintf(tw, "#%d %s\t%d\t%d\t%.1f\n", p.Number, p.Name, p.Committed, p.Done, p.Average)
		}
		return tw.Flush()
	})
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	ChartOptions
	List string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{ChartOptions: ChartOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "history <board>",
		Short: "Totals of a list after every change",
		Long: `Show the card and point totals of the lists with a name after every
change within a range.

Examples:
  flowledger history b1 --db ./fl.db --list "In Progress"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.List, "list", "", "list name (required)")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func runHistory(opts *HistoryOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	from, to, err := opts.rangeAt(time.Now())
	if err != nil {
		return err
	}

	sess, err := openSession(opts.RootOptions, opts.Profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}

	points, err := analytics.ListHistory(ctx, tl, opts.List, from, to)
	if err != nil {
		return analyticsError("list history failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(points, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "at\tcards\tpoints\t")
		for _, p := range points {
			fmt.Fprintf(tw, "%s\t%d\t%d\t\n", formatTime(p.At), p.Cards, p.Points)
		}
		return tw.Flush()
	})
}
