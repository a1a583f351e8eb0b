package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/store"
)

// RenderLedger renders a board's lists, ledger entries, sprints and
// messages as stable text:
//
//	board b1 "Team"
//
//	list l1 "New"
//	  2016-07-12T10:00:00.000Z +1 cards=1 points=0
//
// Lists are ordered by external id and entries by (at, seq), so two stores
// reconciled from the same history render identically.
func RenderLedger(ctx context.Context, s *store.Store, boardExternalID string) (string, error) {
	var buf strings.Builder
	b, byID, err := renderLists(ctx, &buf, s, boardExternalID)
	if err != nil {
		return "", err
	}

	sprints, err := s.Sprints(ctx, b.ID)
	if err != nil {
		return "", err
	}
	if len(sprints) > 0 {
		buf.WriteString("\nsprints\n")
		slices.Reverse(sprints)
		for _, sp := range sprints {
			completed := "-"
			if sp.CompletedListID != nil {
				completed = byID[*sp.CompletedListID]
			}
			fmt.Fprintf(&buf, "  #%d %q %s..%s completed=%s\n",
				sp.Number, sp.Name, event.FormatTime(sp.Start), event.FormatTime(sp.End), completed)
		}
	}

	msgs, err := s.BoardMessages(ctx, b.ID)
	if err != nil {
		return "", err
	}
	if len(msgs) > 0 {
		buf.WriteString("\nmessages\n")
		for _, m := range msgs {
			fmt.Fprintf(&buf, "  %s: %s\n", m.Level, m.Text)
		}
	}
	return buf.String(), nil
}

// RenderLists renders the board header and its list ledgers without
// sprints or messages.
func RenderLists(ctx context.Context, s *store.Store, boardExternalID string) (string, error) {
	var buf strings.Builder
	if _, _, err := renderLists(ctx, &buf, s, boardExternalID); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderLists(ctx context.Context, buf *strings.Builder, s *store.Store, boardExternalID string) (ir.Board, map[int64]string, error) {
	b, ok, err := s.BoardByExternalID(ctx, boardExternalID)
	if err != nil {
		return ir.Board{}, nil, err
	}
	if !ok {
		return ir.Board{}, nil, fmt.Errorf("board %s not found", boardExternalID)
	}
	fmt.Fprintf(buf, "board %s %q\n", b.ExternalID, b.Name)

	lists, err := s.Lists(ctx, b.ID)
	if err != nil {
		return ir.Board{}, nil, err
	}
	slices.SortFunc(lists, func(x, y ir.List) int { return strings.Compare(x.ExternalID, y.ExternalID) })
	byID := make(map[int64]string, len(lists))
	for _, l := range lists {
		byID[l.ID] = l.ExternalID
		stats, err := s.ListStats(ctx, l.ID)
		if err != nil {
			return ir.Board{}, nil, err
		}
		fmt.Fprintf(buf, "\nlist %s %q\n", l.ExternalID, l.Name)
		for _, st := range stats {
			fmt.Fprintf(buf, "  %s %+d cards=%d points=%d\n",
				event.FormatTime(st.At), st.Diff, st.Cards, st.Points)
		}
	}
	return b, byID, nil
}

// RunWithGolden executes a scenario, reports its failed expectations and
// compares the rendered ledger against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, []byte(result.Ledger))
	return nil
}
