package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture holds one board with two lists and one card.
type fixture struct {
	board   ir.Board
	newList ir.List
	backlog ir.List
	card    ir.Card
}

func createFixture(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()

	b, err := s.EnsureBoard(ctx, "b1", "Team")
	if err != nil {
		t.Fatalf("EnsureBoard() failed: %v", err)
	}
	l1, err := s.EnsureList(ctx, b.ID, "l1", "New")
	if err != nil {
		t.Fatalf("EnsureList() failed: %v", err)
	}
	l2, err := s.EnsureList(ctx, b.ID, "l2", "Backlog")
	if err != nil {
		t.Fatalf("EnsureList() failed: %v", err)
	}
	c, err := s.EnsureCard(ctx, b.ID, "c1", "Task")
	if err != nil {
		t.Fatalf("EnsureCard() failed: %v", err)
	}
	return fixture{board: b, newList: l1, backlog: l2, card: c}
}

// testAction builds an action with minimal required fields.
func testAction(f fixture, externalID string, at time.Time, seq int64, list *ir.List) ir.CardAction {
	a := ir.CardAction{
		BoardID:       f.board.ID,
		CardID:        f.card.ID,
		ExternalID:    externalID,
		At:            at,
		Seq:           seq,
		Kind:          ir.KindMoveOrRename,
		ActionType:    "updateCard",
		CardName:      "Task",
		PayloadDigest: "digest-" + externalID,
	}
	if list != nil {
		id := list.ID
		a.ListID = &id
	}
	return a
}

func ts(minute int) time.Time {
	return time.Date(2016, 7, 12, 10, minute, 0, 0, time.UTC)
}
