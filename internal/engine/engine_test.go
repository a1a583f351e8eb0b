package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/testutil"
)

// history is a small board: three cards moving through New, Backlog and
// In Progress with renames, an archive and a delete.
func history(a *testutil.Actions) []ir.RawEvent {
	return []ir.RawEvent{
		a.Create(testutil.At(0), "c1", "Login", "l1", "New"),
		a.Create(testutil.At(1), "c2", "(5) Search", "l1", "New"),
		a.Rename(testutil.At(2), "c1", "Login", "(3) Login", "l1"),
		a.Move(testutil.At(3), "c1", "(3) Login", "l1", "New", "l2", "Backlog"),
		a.Create(testutil.At(3), "c3", "(1) Logout", "l2", "Backlog"),
		a.Move(testutil.At(4), "c2", "(5) Search", "l1", "New", "l3", "In Progress"),
		a.Archive(testutil.At(5), "c1", "(3) Login", "l2"),
		a.Move(testutil.At(6), "c3", "(2) Logout", "l2", "Backlog", "l3", "In Progress"),
		a.Delete(testutil.At(7), "c2"),
	}
}

func TestRefresh_LedgerScenario(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")

	src := testutil.NewSource(
		a.Create(testutil.At(0), "c1", "Task", "l1", "New"),
		a.Rename(testutil.At(1), "c1", "Task", "(3) Task", "l1"),
		a.Move(testutil.At(2), "c1", "(3) Task", "l1", "New", "l2", "Backlog"),
		a.Archive(testutil.At(3), "c1", "(3) Task", "l2"),
	)

	rep := mustRefresh(t, e, request(src, nil))
	assert.Equal(t, "run", rep.RunID)
	assert.Equal(t, 4, rep.Fetched)
	assert.Equal(t, 4, rep.Applied)

	got := ledgerByList(t, s, "b1")
	assert.Equal(t, []ledgerRow{
		{Diff: 1, Cards: 1, Points: 0, At: testutil.At(0)},
		{Diff: 0, Cards: 1, Points: 3, At: testutil.At(1)},
		{Diff: -1, Cards: 0, Points: 0, At: testutil.At(2)},
	}, got["l1"])
	assert.Equal(t, []ledgerRow{
		{Diff: 1, Cards: 1, Points: 3, At: testutil.At(2)},
		{Diff: -1, Cards: 0, Points: 0, At: testutil.At(3)},
	}, got["l2"])
}

func TestRefresh_ReplayIsNoop(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	src := fullReplay{testutil.NewSource(history(testutil.NewActions("b1"))...)}

	first := mustRefresh(t, e, request(src, nil))
	assert.Equal(t, 9, first.Applied)
	before := ledgerByList(t, s, "b1")

	second := mustRefresh(t, e, request(src, nil))
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, 9, second.Skipped)
	assert.Equal(t, 0, second.Conflicts)
	assert.Equal(t, before, ledgerByList(t, s, "b1"))
}

func TestRefresh_OrderIndependent(t *testing.T) {
	events := history(testutil.NewActions("b1"))

	reference := setupTestStore(t)
	mustRefresh(t, newTestEngine(t, reference, testutil.NewWallClock(testutil.Day(1))),
		request(testutil.NewSource(events...), nil))
	want := ledgerByList(t, reference, "b1")

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := append([]ir.RawEvent(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		s := setupTestStore(t)
		mustRefresh(t, newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1))),
			request(testutil.NewSource(shuffled...), nil))
		assert.Equal(t, want, ledgerByList(t, s, "b1"), "permutation %d", i)
	}
}

func TestRefresh_IncrementalMatchesSinglePass(t *testing.T) {
	events := history(testutil.NewActions("b1"))

	single := setupTestStore(t)
	mustRefresh(t, newTestEngine(t, single, testutil.NewWallClock(testutil.Day(1))),
		request(testutil.NewSource(events...), nil))

	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	src := testutil.NewSource(events[:4]...)
	mustRefresh(t, e, request(src, nil))

	src.Add(events[4:]...)
	rep := mustRefresh(t, e, request(src, nil))

	// The action at the checkpoint is fetched again and skipped.
	require.Len(t, src.Since, 2)
	require.NotNil(t, src.Since[1])
	assert.Equal(t, testutil.At(3), *src.Since[1])
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 5, rep.Applied)

	assert.Equal(t, ledgerByList(t, single, "b1"), ledgerByList(t, s, "b1"))
}

func TestRefresh_LedgerNeverNegative(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	mustRefresh(t, e, request(testutil.NewSource(history(testutil.NewActions("b1"))...), nil))

	for list, rows := range ledgerByList(t, s, "b1") {
		sum := 0
		for _, r := range rows {
			sum += r.Diff
			assert.GreaterOrEqual(t, r.Cards, 0, "list %s", list)
			assert.Equal(t, sum, r.Cards, "list %s: running count must equal the sum of deltas", list)
		}
	}
}

func TestRefresh_LateActionIsDropped(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")
	inner := testutil.NewSource(
		a.Create(testutil.At(0), "c1", "Task", "l1", "New"),
		a.Move(testutil.At(10), "c1", "Task", "l1", "New", "l2", "Backlog"),
	)
	src := fullReplay{inner}
	mustRefresh(t, e, request(src, nil))

	inner.Add(a.Create(testutil.At(5), "c2", "Late", "l1", "New"))
	rep := mustRefresh(t, e, request(src, nil))

	assert.Equal(t, 0, rep.Applied)
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 2, rep.Skipped)

	b, _, err := s.BoardByExternalID(context.Background(), "b1")
	require.NoError(t, err)
	_, found, err := s.CardByExternalID(context.Background(), b.ID, "c2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRefresh_ChangedPayloadIsConflict(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")
	create := a.Create(testutil.At(0), "c1", "(2) Task", "l1", "New")
	mustRefresh(t, e, request(testutil.NewSource(create), nil))

	edited := create
	card := *create.Data.Card
	card.Name = "(8) Task"
	edited.Data.Card = &card

	rep := mustRefresh(t, e, request(testutil.NewSource(edited), nil))
	assert.Equal(t, 1, rep.Conflicts)
	assert.Equal(t, 1, rep.Skipped)

	got := ledgerByList(t, s, "b1")
	assert.Equal(t, []ledgerRow{{Diff: 1, Cards: 1, Points: 2, At: testutil.At(0)}}, got["l1"])
}

func TestRefresh_RejectsAreCounted(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")
	other := testutil.NewActions("b2")

	rep := mustRefresh(t, e, request(testutil.NewSource(
		a.Create(testutil.At(0), "c1", "Task", "l1", "New"),
		a.Typed("commentCard", testutil.At(1), "c1"),
		other.Create(testutil.At(2), "c9", "Elsewhere", "l9", "Other"),
		a.Delete(testutil.At(3), "c7"),
	), nil))

	assert.Equal(t, 4, rep.Fetched)
	assert.Equal(t, 2, rep.Rejected)
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 1, rep.Applied)
}

func TestRefresh_SnapshotBootstrap(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")

	src := testutil.NewSource(
		a.Move(testutil.At(10), "c0", "(2) Old", "l2", "Backlog", "l3", "In Progress"),
	)
	src.SetSnapshot(
		ir.RawItemState{CardID: "c0", Name: "(2) Old", ListID: "l2", ListName: "Backlog"},
		ir.RawItemState{CardID: "cx", Name: "Gone", ListID: "l2", ListName: "Backlog", Closed: true},
	)

	rep := mustRefresh(t, e, request(src, nil))
	assert.Equal(t, 1, rep.Snapshot)
	assert.Equal(t, 2, rep.Applied)
	require.Len(t, src.SnapshotAt, 1)
	assert.Equal(t, testutil.At(10).Add(-time.Millisecond), src.SnapshotAt[0])

	got := ledgerByList(t, s, "b1")
	assert.Equal(t, []ledgerRow{
		{Diff: 1, Cards: 1, Points: 2, At: testutil.At(10).Add(-time.Millisecond)},
		{Diff: -1, Cards: 0, Points: 0, At: testutil.At(10)},
	}, got["l2"])
	assert.Equal(t, []ledgerRow{{Diff: 1, Cards: 1, Points: 2, At: testutil.At(10)}}, got["l3"])

	// Later refreshes do not take another snapshot.
	mustRefresh(t, e, request(src, nil))
	assert.Len(t, src.SnapshotAt, 1)
}

func TestRefresh_SnapshotSkipsCardsCreatedInHistory(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")

	src := testutil.NewSource(
		a.Create(testutil.At(10), "c1", "(3) A", "l1", "New"),
		a.Move(testutil.At(20), "c1", "(3) A", "l1", "New", "l2", "Complete"),
	)
	// Current state, not the state before history.
	src.SetSnapshot(ir.RawItemState{CardID: "c1", Name: "(3) A", ListID: "l2", ListName: "Complete"})

	rep := mustRefresh(t, e, request(src, nil))
	assert.Equal(t, 0, rep.Snapshot)
	assert.Equal(t, 2, rep.Applied)

	got := ledgerByList(t, s, "b1")
	assert.Equal(t, []ledgerRow{{Diff: 1, Cards: 1, Points: 3, At: testutil.At(20)}}, got["l2"])
}

func TestSeedState(t *testing.T) {
	a := testutil.NewActions("b1")
	snap := ir.RawItemState{CardID: "c1", Name: "A", ListID: "l3", ListName: "Done"}

	_, ok := seedState(snap, normalize(t, a.Create(testutil.At(0), "c1", "A", "l1", "New")))
	assert.False(t, ok)

	st, ok := seedState(snap, normalize(t, a.Move(testutil.At(0), "c1", "A", "l1", "New", "l2", "Next")))
	require.True(t, ok)
	assert.Equal(t, "l1", st.ListID)
	assert.Equal(t, "New", st.ListName)

	st, ok = seedState(snap, nil)
	require.True(t, ok)
	assert.Equal(t, snap, st)
}

func TestRefresh_SnapshotFailureIsNotFatal(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")

	src := testutil.NewSource(a.Move(testutil.At(10), "c0", "Old", "l2", "Backlog", "l3", "In Progress"))
	src.SnapshotErr = errors.New("snapshot endpoint down")

	rep := mustRefresh(t, e, request(src, nil))
	assert.Equal(t, 0, rep.Snapshot)
	assert.Equal(t, 1, rep.Applied)
	assert.NotEmpty(t, rep.Warnings)
}

func TestRefresh_FetchFailureDefers(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))

	src := testutil.NewSource()
	src.FetchErr = errors.New("upstream unavailable")

	rep, err := e.Refresh(context.Background(), request(src, nil))
	require.NoError(t, err)
	assert.True(t, rep.Deferred)
	assert.Equal(t, 0, rep.Applied)
	assert.Empty(t, src.SnapshotAt)
}

func TestRefresh_InvalidRequest(t *testing.T) {
	e := newTestEngine(t, setupTestStore(t), testutil.NewWallClock(testutil.Day(1)))

	_, err := e.Refresh(context.Background(), RefreshRequest{Source: testutil.NewSource()})
	var re *ReconcileError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidRequest, re.Code)

	_, err = e.Refresh(context.Background(), RefreshRequest{Board: "b1"})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidRequest, re.Code)
}

func TestRefresh_ActionChain(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	mustRefresh(t, e, request(testutil.NewSource(history(testutil.NewActions("b1"))...), nil))

	ctx := context.Background()
	b, _, err := s.BoardByExternalID(ctx, "b1")
	require.NoError(t, err)
	c1, ok, err := s.CardByExternalID(ctx, b.ID, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "(3) Login", c1.Name)

	actions, err := s.CardActions(ctx, c1.ID)
	require.NoError(t, err)
	require.Len(t, actions, 4)
	assert.Nil(t, actions[0].PreviousID)
	for i := 1; i < len(actions); i++ {
		require.NotNil(t, actions[i].PreviousID)
		assert.Equal(t, actions[i-1].ID, *actions[i].PreviousID)
		assert.Greater(t, actions[i].Seq, actions[i-1].Seq)
	}

	last := actions[3]
	assert.True(t, last.Archived)
	assert.Nil(t, last.ListID)
	assert.Equal(t, ir.Size{Points: 3, Known: true}, last.Size)
}

func TestRefresh_ListRenameKeepsIdentity(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1)))
	a := testutil.NewActions("b1")
	src := testutil.NewSource(
		a.Create(testutil.At(0), "c1", "Task", "l1", "New"),
		a.Create(testutil.At(1), "c2", "Task", "l2", "Backlog"),
		a.Move(testutil.At(2), "c2", "Task", "l2", "Backlog", "l1", "Inbox"),
	)
	mustRefresh(t, e, request(src, nil))

	inbox := listNamed(t, s, "b1", "Inbox")
	assert.Equal(t, "l1", inbox.ExternalID)

	got := ledgerByList(t, s, "b1")
	require.Len(t, got["l1"], 2)
	assert.Equal(t, 2, got["l1"][1].Cards)
}

func TestRefresh_ClockResumesAcrossEngines(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewActions("b1")
	src := testutil.NewSource(a.Create(testutil.At(0), "c1", "Task", "l1", "New"))
	mustRefresh(t, newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1))), request(src, nil))

	src.Add(a.Create(testutil.At(1), "c2", "Task", "l1", "New"))
	mustRefresh(t, newTestEngine(t, s, testutil.NewWallClock(testutil.Day(1))), request(src, nil))

	stats := ledgerByList(t, s, "b1")["l1"]
	require.Len(t, stats, 2)

	seq, err := s.MaxSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestRefresh_ConcurrentBoards(t *testing.T) {
	s := setupTestStore(t)
	e := New(s, WithNow(testutil.NewWallClock(testutil.Day(1)).Now))

	boards := []string{"b1", "b2", "b3"}
	var wg sync.WaitGroup
	errs := make(chan error, len(boards))
	for _, b := range boards {
		wg.Add(1)
		go func(board string) {
			defer wg.Done()
			a := testutil.NewActions(board)
			src := testutil.NewSource(history(a)...)
			_, err := e.Refresh(context.Background(), RefreshRequest{Board: board, Source: src, Profile: ir.DefaultProfile()})
			errs <- err
		}(b)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for _, b := range boards {
		got := ledgerByList(t, s, b)
		assert.Len(t, got["l3"], 3, "board %s", b)
	}
}

func TestBoardLocks_TryLock(t *testing.T) {
	var locks BoardLocks

	unlock := locks.Lock("b1")
	_, ok := locks.TryLock("b1")
	assert.False(t, ok)

	other, ok := locks.TryLock("b2")
	require.True(t, ok)
	other()

	unlock()
	again, ok := locks.TryLock("b1")
	require.True(t, ok)
	again()
}

func TestErrorCodes_SurviveWrapping(t *testing.T) {
	conflict := fmt.Errorf("derive: %w", &ReconcileError{Code: ErrCodeConflict, Message: "two sprints share a marker"})
	assert.True(t, IsConflictError(conflict))
	assert.False(t, IsStorageError(conflict))

	storage := fmt.Errorf("refresh: %w", storageError("b1", "a1", errors.New("disk full")))
	assert.True(t, IsStorageError(storage))
	assert.False(t, IsConflictError(storage))
	assert.False(t, IsConflictError(errors.New("plain")))
}
