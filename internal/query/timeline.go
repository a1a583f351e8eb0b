package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/store"
)

// Forever is an instant after every recorded action. Use it to ask for
// the current state.
var Forever = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// Timeline is a read-only view of one board's reconciled history.
type Timeline struct {
	store *store.Store
	board ir.Board
	lists []ir.List
}

// Open loads the board with the given external id.
func Open(ctx context.Context, s *store.Store, boardExternalID string) (*Timeline, error) {
	b, ok, err := s.BoardByExternalID(ctx, boardExternalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("open timeline %s: %w", boardExternalID, ErrBoardNotFound)
	}
	lists, err := s.Lists(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &Timeline{store: s, board: b, lists: lists}, nil
}

// Board returns the board the timeline reads.
func (t *Timeline) Board() ir.Board {
	return t.board
}

// Lists returns the board's lists in creation order.
func (t *Timeline) Lists() []ir.List {
	return t.lists
}

// Named returns the lists whose normalized name equals name. Several lists
// can share a name.
func (t *Timeline) Named(name string) []ir.List {
	want := ir.NormalizeName(name)
	var out []ir.List
	for _, l := range t.lists {
		if ir.NormalizeName(l.Name) == want {
			out = append(out, l)
		}
	}
	return out
}

// Resolve maps every name to its lists. All names must exist.
func (t *Timeline) Resolve(names []string) (map[string][]ir.List, error) {
	out := make(map[string][]ir.List, len(names))
	var missing []string
	for _, n := range names {
		ls := t.Named(n)
		if len(ls) == 0 {
			missing = append(missing, n)
			continue
		}
		out[n] = ls
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Board: t.board.ExternalID, Missing: missing}
	}
	return out, nil
}

// ResolveAny is like Resolve but only requires one of names to exist.
// It suits optional list sets such as the completed lists of a profile,
// which name every list a board might use.
func (t *Timeline) ResolveAny(names []string) (map[string][]ir.List, error) {
	out := make(map[string][]ir.List, len(names))
	for _, n := range names {
		if ls := t.Named(n); len(ls) > 0 {
			out[n] = ls
		}
	}
	if len(out) == 0 && len(names) > 0 {
		return nil, &ValidationError{Board: t.board.ExternalID, Missing: names}
	}
	return out, nil
}

// BoardAt returns every card's latest action at or before at, archived and
// deleted cards included.
func (t *Timeline) BoardAt(ctx context.Context, at time.Time) ([]ir.CardSnapshot, error) {
	return t.store.BoardAt(ctx, t.board.ID, at)
}

// OpenCardsAt returns the cards sitting in a list at at.
func (t *Timeline) OpenCardsAt(ctx context.Context, at time.Time) ([]ir.CardSnapshot, error) {
	snaps, err := t.BoardAt(ctx, at)
	if err != nil {
		return nil, err
	}
	open := snaps[:0]
	for _, s := range snaps {
		if s.Action.Archived || s.Action.Deleted || s.Action.ListID == nil {
			continue
		}
		open = append(open, s)
	}
	return open, nil
}

// CardInList is a card in a list at some instant.
type CardInList struct {
	Card ir.Card
	Size ir.Size
	// Since is when the card last arrived in the list.
	Since time.Time
}

// CardsInList returns the cards in a list at at, longest-waiting first.
func (t *Timeline) CardsInList(ctx context.Context, listID int64, at time.Time) ([]CardInList, error) {
	open, err := t.OpenCardsAt(ctx, at)
	if err != nil {
		return nil, err
	}
	arrivals, err := t.store.ArrivalsIn(ctx, []int64{listID}, time.Time{}, at)
	if err != nil {
		return nil, err
	}
	since := make(map[int64]time.Time, len(arrivals))
	for _, a := range arrivals {
		since[a.CardID] = a.Stat.At
	}

	out := []CardInList{}
	for _, s := range open {
		if *s.Action.ListID != listID {
			continue
		}
		out = append(out, CardInList{Card: s.Card, Size: s.Action.Size, Since: since[s.Card.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Since.Before(out[j].Since)
	})
	return out, nil
}

// ListStatAt returns the running totals of a list at at. A list with no
// entry by then reads as empty.
func (t *Timeline) ListStatAt(ctx context.Context, listID int64, at time.Time) (ir.ListStat, error) {
	st, ok, err := t.store.ListStatAt(ctx, listID, at)
	if err != nil {
		return ir.ListStat{}, err
	}
	if !ok {
		return ir.ListStat{BoardID: t.board.ID, ListID: listID}, nil
	}
	return st, nil
}

// ListStatsIn returns a list's ledger entries with from <= at <= to.
func (t *Timeline) ListStatsIn(ctx context.Context, listID int64, from, to time.Time) ([]ir.ListStat, error) {
	return t.store.ListStatsIn(ctx, listID, from, to)
}

// SumAt adds up one running total over lists at at.
func (t *Timeline) SumAt(ctx context.Context, lists []ir.List, at time.Time, m ir.Metric) (int, error) {
	total := 0
	for _, l := range lists {
		st, err := t.ListStatAt(ctx, l.ID, at)
		if err != nil {
			return 0, err
		}
		total += m.Value(st)
	}
	return total, nil
}

// TotalsAt adds up one running total over every list carrying one of names.
// All names must exist.
func (t *Timeline) TotalsAt(ctx context.Context, names []string, at time.Time, m ir.Metric) (int, error) {
	resolved, err := t.Resolve(names)
	if err != nil {
		return 0, err
	}
	return t.SumAt(ctx, Flatten(names, resolved), at, m)
}

// Arrival is a card entering a list.
type Arrival = store.Arrival

// ArrivalsIn returns the arrivals into lists with after < at <= through,
// oldest first.
func (t *Timeline) ArrivalsIn(ctx context.Context, lists []ir.List, after, through time.Time) ([]Arrival, error) {
	ids := make([]int64, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
	}
	return t.store.ArrivalsIn(ctx, ids, after, through)
}

// Sprints returns the board's sprints, most recent number first.
func (t *Timeline) Sprints(ctx context.Context) ([]ir.Sprint, error) {
	return t.store.Sprints(ctx, t.board.ID)
}

// Flatten returns the lists of resolved in the order of names, each list
// once.
func Flatten(names []string, resolved map[string][]ir.List) []ir.List {
	seen := map[int64]bool{}
	var out []ir.List
	for _, n := range names {
		for _, l := range resolved[n] {
			if !seen[l.ID] {
				seen[l.ID] = true
				out = append(out, l)
			}
		}
	}
	return out
}
