package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/ir"
)

// SprintView is a sprint with its completed list resolved to a name.
type SprintView struct {
	ir.Sprint
	CompletedList string `json:"completed_list,omitempty"`
}

// NewSprintsCommand creates the sprints command.
func NewSprintsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprints <board>",
		Short: "List derived sprints",
		Long: `List the sprints derived from the board's sprint marker cards,
most recent first.

Examples:
  flowledger sprints b1 --db ./fl.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSprints(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSprints(opts *RootOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	sess, err := openSession(opts, "")
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

	names := make(map[int64]string, len(tl.Lists()))
	for _, l := range tl.Lists() {
		names[l.ID] = l.Name
	}
	views := make([]SprintView, 0, len(sprints))
	for _, sp := range sprints {
		v := SprintView{Sprint: sp}
		if sp.CompletedListID != nil {
			v.CompletedList = names[*sp.CompletedListID]
		}
		views = append(views, v)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(views, func(w io.Writer) error {
		if len(views) == 0 {
			fmt.Fprintln(w, "No sprints")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, v := range views {
			done := v.CompletedList
			if done == "" {
				done = "-"
			}
			fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\n", v.Number, v.Name, formatTime(v.Start), formatTime(v.End), done)
		}
		return tw.Flush()
	})
}

// NewMessagesCommand creates the messages command.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages <board>",
		Short: "Show notes recorded while reconciling a board",
		Long: `Show the warnings and notes recorded for a board, such as duplicate
sprint markers.

Examples:
  flowledger messages b1 --db ./fl.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessages(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runMessages(opts *RootOptions, board string, cmd *cobra.Command) error {
	ctx := context.Background()

	sess, err := openSession(opts, "")
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}
	msgs, err := sess.store.BoardMessages(ctx, tl.Board().ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read messages", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(msgs, func(w io.Writer) error {
		if len(msgs) == 0 {
			fmt.Fprintln(w, "No messages")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(w, "%s %s: %s\n", formatTime(m.CreatedAt), m.Level, m.Text)
		}
		return nil
	})
}
