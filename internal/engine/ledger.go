package engine

import (
	"log/slog"

	"github.com/roach88/flowledger/internal/ir"
)

// Delta is one occupancy change produced by a transition. List is the
// external list id; Points is the signed change in story points.
type Delta struct {
	List   string
	Diff   int
	Points int
}

// Deltas derives the ledger deltas of a transition:
//   - -1 for the list the card left, removing its previous size
//   - +1 for the list the card entered, adding its new size
//   - 0 for a card that stayed put but was renamed or resized,
//     carrying new size minus old size
//
// A leave always precedes an arrival. Dropped transitions yield nothing.
func Deltas(tr Transition) []Delta {
	if tr.Drop {
		return nil
	}

	prev, next := tr.Prev.ListID, tr.Next.ListID
	prevPts, nextPts := tr.Prev.Size.Points, tr.Next.Size.Points

	var out []Delta
	if prev != "" && prev != next {
		out = append(out, Delta{List: prev, Diff: -1, Points: -prevPts})
	}
	if next != "" {
		switch {
		case next != prev:
			out = append(out, Delta{List: next, Diff: 1, Points: nextPts})
		case tr.Rename || prevPts != nextPts:
			out = append(out, Delta{List: next, Diff: 0, Points: nextPts - prevPts})
		}
	}
	return out
}

// Totals are the running card count and story points of one list.
type Totals struct {
	Cards  int
	Points int
}

// Ledger holds the running totals of every list on a board for the
// duration of one refresh. It is seeded from the newest committed entry
// of each list.
//
// Plan computes entries without changing the totals; Post applies them
// once the entries are durably committed.
type Ledger struct {
	totals map[int64]Totals
}

// NewLedger seeds a ledger from the latest committed entry per list.
func NewLedger(latest map[int64]ir.ListStat) *Ledger {
	l := &Ledger{totals: make(map[int64]Totals, len(latest))}
	for id, st := range latest {
		l.totals[id] = Totals{Cards: st.Cards, Points: st.Points}
	}
	return l
}

// Totals returns the running totals of a list; zero if it has no entries.
func (l *Ledger) Totals(listID int64) Totals {
	return l.totals[listID]
}

// ListDelta is a Delta with the list resolved to its store id.
type ListDelta struct {
	ListID int64
	Diff   int
	Points int
}

// Plan returns the ledger entries for deltas, each carrying the running
// totals right after it. Two deltas for the same list accumulate.
func (l *Ledger) Plan(deltas []ListDelta) []ir.ListStat {
	if len(deltas) == 0 {
		return nil
	}
	pending := make(map[int64]Totals, len(deltas))
	stats := make([]ir.ListStat, 0, len(deltas))
	for _, d := range deltas {
		t, ok := pending[d.ListID]
		if !ok {
			t = l.totals[d.ListID]
		}
		t.Cards += d.Diff
		t.Points += d.Points
		if t.Cards < 0 || t.Points < 0 {
			slog.Warn("ledger underflow, clamping running totals", "list_id", d.ListID, "cards", t.Cards, "points", t.Points)
			t.Cards = max(t.Cards, 0)
			t.Points = max(t.Points, 0)
		}
		pending[d.ListID] = t
		stats = append(stats, ir.ListStat{ListID: d.ListID, Diff: d.Diff, Cards: t.Cards, Points: t.Points})
	}
	return stats
}

// Post applies committed entries to the running totals.
func (l *Ledger) Post(stats []ir.ListStat) {
	for _, st := range stats {
		l.totals[st.ListID] = Totals{Cards: st.Cards, Points: st.Points}
	}
}
