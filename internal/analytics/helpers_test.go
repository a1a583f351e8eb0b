package analytics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/engine"
	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
	"github.com/roach88/flowledger/internal/store"
	"github.com/roach88/flowledger/internal/testutil"
)

// reconcile refreshes board "b1" from events and opens its timeline.
func reconcile(t *testing.T, dues engine.DueDateLookup, events ...ir.RawEvent) *query.Timeline {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := engine.New(s, engine.WithNow(testutil.NewWallClock(testutil.Day(2)).Now))
	_, err = e.Refresh(ctx, engine.RefreshRequest{
		Board:   "b1",
		Source:  testutil.NewSource(events...),
		Dues:    dues,
		Profile: ir.DefaultProfile(),
	})
	require.NoError(t, err)

	tl, err := query.Open(ctx, s, "b1")
	require.NoError(t, err)
	return tl
}

// flowBoard: X goes Backlog -> Next -> In Progress -> Complete, Y stops in
// Next, Z goes from Complete back to Next.
func flowBoard(t *testing.T) *query.Timeline {
	a := testutil.NewActions("b1")
	return reconcile(t, nil,
		a.Create(testutil.At(0), "x", "(3) X", "l1", "Backlog"),
		a.Create(testutil.At(1), "y", "(2) Y", "l1", "Backlog"),
		a.Create(testutil.At(5), "z", "(1) Z", "l4", "Complete"),
		a.Move(testutil.At(10), "x", "(3) X", "l1", "Backlog", "l2", "Next"),
		a.Move(testutil.At(15), "y", "(2) Y", "l1", "Backlog", "l2", "Next"),
		a.Move(testutil.At(20), "x", "(3) X", "l2", "Next", "l3", "In Progress"),
		a.Move(testutil.At(30), "z", "(1) Z", "l4", "Complete", "l2", "Next"),
		a.Move(testutil.At(40), "x", "(3) X", "l3", "In Progress", "l4", "Complete"),
		a.Rename(testutil.At(45), "x", "(3) X", "(5) X", "l4"),
	)
}
