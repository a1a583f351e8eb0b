package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/store"
	"github.com/roach88/flowledger/internal/testutil"
)

// setupTestStore creates a file-backed store in a temp dir.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, s *store.Store, now *testutil.WallClock) *Engine {
	t.Helper()
	return New(s, WithNow(now.Now), WithRunIDGenerator(testutil.NewFixedRunID("run")))
}

// request builds a refresh of board "b1" with the default profile.
func request(src EventSource, dues DueDateLookup) RefreshRequest {
	return RefreshRequest{Board: "b1", BoardName: "Team", Source: src, Dues: dues, Profile: ir.DefaultProfile()}
}

func mustRefresh(t *testing.T, e *Engine, req RefreshRequest) *Report {
	t.Helper()
	rep, err := e.Refresh(context.Background(), req)
	require.NoError(t, err)
	return rep
}

// fullReplay serves the whole upstream history on every fetch, as a source
// that ignores the checkpoint would.
type fullReplay struct {
	*testutil.Source
}

func (f fullReplay) FetchEvents(ctx context.Context, board string, since *time.Time) ([]ir.RawEvent, error) {
	return f.Source.FetchEvents(ctx, board, nil)
}

type ledgerRow struct {
	Diff   int
	Cards  int
	Points int
	At     time.Time
}

// ledgerByList returns every ledger entry of the board keyed by list
// external id, oldest first.
func ledgerByList(t *testing.T, s *store.Store, boardExt string) map[string][]ledgerRow {
	t.Helper()
	ctx := context.Background()

	b, ok, err := s.BoardByExternalID(ctx, boardExt)
	require.NoError(t, err)
	require.True(t, ok)
	lists, err := s.Lists(ctx, b.ID)
	require.NoError(t, err)

	out := map[string][]ledgerRow{}
	for _, l := range lists {
		stats, err := s.ListStats(ctx, l.ID)
		require.NoError(t, err)
		for _, st := range stats {
			out[l.ExternalID] = append(out[l.ExternalID], ledgerRow{Diff: st.Diff, Cards: st.Cards, Points: st.Points, At: st.At})
		}
	}
	return out
}

func listNamed(t *testing.T, s *store.Store, boardExt, name string) ir.List {
	t.Helper()
	ctx := context.Background()
	b, _, err := s.BoardByExternalID(ctx, boardExt)
	require.NoError(t, err)
	lists, err := s.Lists(ctx, b.ID)
	require.NoError(t, err)
	for _, l := range lists {
		if l.Name == name {
			return l
		}
	}
	t.Fatalf("no list named %q", name)
	return ir.List{}
}
