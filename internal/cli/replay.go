package cli

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowledger/internal/engine"
	"github.com/roach88/flowledger/internal/harness"
	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Profile string
}

// ReplayResult is the outcome of replaying one board.
type ReplayResult struct {
	Board         string `json:"board"`
	Actions       int    `json:"actions"`
	Applied       int    `json:"applied"`
	Deterministic bool   `json:"deterministic"`
	// Diff is the first differing line pair, when any.
	Diff []string `json:"diff,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [board...]",
		Short: "Re-reconcile stored actions and verify the ledger",
		Long: `Feed every stored action of a board through a fresh reconciliation in
memory and compare the resulting list ledgers with the stored ones.

Without arguments every board in the database is replayed.

Exit codes:
  0 - Every board reproduced its ledger
  1 - A ledger diverged
  2 - Command error (database not found, etc.)

Examples:
  flowledger replay --db ./fl.db
  flowledger replay b1 --db ./fl.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Profile, "profile", "", "CUE board profile (overrides config)")
	return cmd
}

func runReplay(opts *ReplayOptions, boards []string, cmd *cobra.Command) error {
	ctx := context.Background()

	sess, err := openSession(opts.RootOptions, opts.Profile)
	if err != nil {
		return err
	}
	defer sess.Close()

	if len(boards) == 0 {
		all, err := sess.store.Boards(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list boards", err)
		}
		for _, b := range all {
			boards = append(boards, b.ExternalID)
		}
	}

	results := make([]ReplayResult, 0, len(boards))
	diverged := 0
	for _, board := range boards {
		res, err := replayBoard(ctx, sess, board)
		if err != nil {
			return err
		}
		if !res.Deterministic {
			diverged++
		}
		results = append(results, res)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := f.Render(results, func(w io.Writer) error {
		if len(results) == 0 {
			fmt.Fprintln(w, "No boards")
			return nil
		}
		for _, r := range results {
			status := "ok"
			if !r.Deterministic {
				status = "DIVERGED"
			}
			fmt.Fprintf(w, "%s: %s (%d actions, %d applied)\n", r.Board, status, r.Actions, r.Applied)
			for _, line := range r.Diff {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if diverged > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d board(s) diverged on replay", diverged))
	}
	return nil
}

func replayBoard(ctx context.Context, sess *session, board string) (ReplayResult, error) {
	tl, err := sess.timeline(ctx, board)
	if err != nil {
		return ReplayResult{}, err
	}

	raws, err := storedActions(ctx, sess.store, tl.Board().ID)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to read stored actions", err)
	}

	mem, err := store.Open(store.MemoryPath)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to open replay store", err)
	}
	defer mem.Close()

	rep, err := engine.New(mem).Refresh(ctx, engine.RefreshRequest{
		Board:     board,
		BoardName: tl.Board().Name,
		Source:    storedSource(raws),
		Profile:   sess.profile,
	})
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "replay failed", err)
	}

	want, err := harness.RenderLists(ctx, sess.store, board)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to render stored ledger", err)
	}
	got, err := harness.RenderLists(ctx, mem, board)
	if err != nil {
		return ReplayResult{}, WrapExitError(ExitCommandError, "failed to render replayed ledger", err)
	}

	res := ReplayResult{Board: board, Actions: len(raws), Applied: rep.Applied, Deterministic: want == got}
	if !res.Deterministic {
		res.Diff = firstDiff(want, got)
	}
	return res, nil
}

// storedActions returns the payloads of every committed action of a board
// in commit order.
func storedActions(ctx context.Context, s *store.Store, boardID int64) ([]ir.RawEvent, error) {
	cards, err := s.Cards(ctx, boardID)
	if err != nil {
		return nil, err
	}
	var actions []ir.CardAction
	for _, c := range cards {
		as, err := s.CardActions(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		actions = append(actions, as...)
	}
	slices.SortFunc(actions, func(a, b ir.CardAction) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})

	raws := make([]ir.RawEvent, 0, len(actions))
	for _, a := range actions {
		data, err := s.ActionPayload(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		var raw ir.RawEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode payload of action %s: %w", a.ExternalID, err)
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// storedSource serves a fixed action history with no snapshot.
type storedSource []ir.RawEvent

func (s storedSource) FetchEvents(ctx context.Context, board string, since *time.Time) ([]ir.RawEvent, error) {
	return s, nil
}

func (s storedSource) FetchSnapshot(ctx context.Context, board string, asOf time.Time) ([]ir.RawItemState, error) {
	return nil, nil
}

// firstDiff returns the first pair of lines where want and got differ.
func firstDiff(want, got string) []string {
	wl, gl := strings.Split(want, "\n"), strings.Split(got, "\n")
	for i := 0; i < max(len(wl), len(gl)); i++ {
		var w, g string
		if i < len(wl) {
			w = wl[i]
		}
		if i < len(gl) {
			g = gl[i]
		}
		if w != g {
			return []string{fmt.Sprintf("line %d stored:   %s", i+1, w), fmt.Sprintf("line %d replayed: %s", i+1, g)}
		}
	}
	return nil
}
