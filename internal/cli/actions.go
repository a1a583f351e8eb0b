package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/ir"
)

// ActionsOptions holds flags for the actions command.
type ActionsOptions struct {
	*RootOptions
	Payload bool
}

// ActionView is one committed action of a card.
type ActionView struct {
	ir.CardAction
	ListName string          `json:"list_name,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewActionsCommand creates the actions command.
func NewActionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "actions <board> <card>",
		Short: "Show a card's action history",
		Long: `Show the committed actions of a card in the order they were applied,
with the list the card sat in after each one.

Examples:
  flowledger actions b1 c42 --db ./fl.db
  flowledger actions b1 c42 --db ./fl.db --payload --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActions(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Payload, "payload", false, "include the stored upstream payload")
	return cmd
}

func runActions(opts *ActionsOptions, board, card string, cmd *cobra.Command) error {
	ctx := context.Background()

	sess, err := openSession(opts.RootOptions, "")
	if err != nil {
		return err
	}
	defer sess.Close()

	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return err
	}
	c, ok, err := sess.store.CardByExternalID(ctx, tl.Board().ID, card)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read card", err)
	}
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("board %s has no card %s", board, card))
	}

	names := make(map[int64]string, len(tl.Lists()))
	for _, l := range tl.Lists() {
		names[l.ID] = l.Name
	}

	actions, err := sess.store.CardActions(ctx, c.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read actions", err)
	}
	views := make([]ActionView, 0, len(actions))
	for _, a := range actions {
		v := ActionView{CardAction: a}
		if a.ListID != nil {
			v.ListName = names[*a.ListID]
		}
		if opts.Payload {
			raw, err := sess.store.ActionPayload(ctx, a.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read payload", err)
			}
			v.Payload = raw
		}
		views = append(views, v)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Render(views, func(w io.Writer) error {
		fmt.Fprintf(w, "%s %q (%d actions)\n", c.ExternalID, c.Name, len(views))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, v := range views {
			where := v.ListName
			switch {
			case v.Deleted:
				where = "(removed)"
			case v.Archived:
				where = "(archived)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", formatTime(v.At), v.ActionType, where, sizeText(v.Size), v.CardName)
			if opts.Payload && len(v.Payload) > 0 {
				fmt.Fprintf(tw, "  \t%s\n", v.Payload)
			}
		}
		return tw.Flush()
	})
}

func sizeText(s ir.Size) string {
	if !s.Known {
		return "-"
	}
	return fmt.Sprintf("(%d)", s.Points)
}
