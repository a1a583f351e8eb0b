package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/store"
)

// DueDateLookup resolves card due dates. Lookups are best effort: ids
// without a due date are absent from the result.
type DueDateLookup interface {
	DueDates(ctx context.Context, cardIDs []string) (ir.DueDates, error)
}

// SprintReport summarizes one sprint derivation pass.
type SprintReport struct {
	Touched   []ir.Sprint
	Bound     []ir.Sprint
	Deferred  []string // marker card external ids retried next refresh
	Conflicts []error
}

// SprintDeriver turns marker cards into sprints.
type SprintDeriver struct {
	store   *store.Store
	profile ir.BoardProfile
	dues    DueDateLookup
	now     func() time.Time

	marker    *regexp.Regexp
	completed *regexp.Regexp
}

// NewSprintDeriver compiles the profile's patterns.
func NewSprintDeriver(s *store.Store, profile ir.BoardProfile, dues DueDateLookup, now func() time.Time) (*SprintDeriver, error) {
	marker, err := MarkerPattern(profile.SprintMarker)
	if err != nil {
		return nil, err
	}
	completed, err := regexp.Compile(profile.CompletedListPattern)
	if err != nil {
		return nil, fmt.Errorf("completed list pattern: %w", err)
	}
	if completed.NumSubexp() < 1 {
		return nil, fmt.Errorf("completed list pattern %q has no capture group for the sprint number", profile.CompletedListPattern)
	}
	if now == nil {
		now = time.Now
	}
	return &SprintDeriver{store: s, profile: profile, dues: dues, now: now, marker: marker, completed: completed}, nil
}

// MarkerPattern matches "<token> <digits>" at the start of a card name,
// case-insensitively, capturing the digits.
func MarkerPattern(token string) (*regexp.Regexp, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("sprint marker token is empty")
	}
	return regexp.Compile(`(?i)^\s*` + regexp.QuoteMeta(token) + `\s*(\d+)\b`)
}

// SprintNumber returns the ordinal of a marker card name.
func (d *SprintDeriver) SprintNumber(name string) (int, bool) {
	m := d.marker.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

type markerCard struct {
	card   ir.Card
	number int
}

// Derive runs the sprint deriver for a board.
//
// Marker cards not yet bound to a sprint, and markers of sprints that have
// not ended, get their due date looked up. A marker without a due date or
// that never reached an active list is deferred. A marker whose ordinal is
// already owned by another card is refused with a board message. Finally
// unbound sprints are linked to their completed-work list.
func (d *SprintDeriver) Derive(ctx context.Context, board ir.Board) (SprintReport, error) {
	var rep SprintReport

	cards, err := d.store.Cards(ctx, board.ID)
	if err != nil {
		return rep, err
	}
	lists, err := d.store.Lists(ctx, board.ID)
	if err != nil {
		return rep, err
	}
	sprints, err := d.store.Sprints(ctx, board.ID)
	if err != nil {
		return rep, err
	}

	now := d.now()
	open := map[int64]bool{}
	bound := map[int64]bool{}
	for _, sp := range sprints {
		bound[sp.MarkerCardID] = true
		if sp.End.After(now) {
			open[sp.MarkerCardID] = true
		}
	}

	var candidates []markerCard
	for _, c := range cards {
		n, ok := d.SprintNumber(c.Name)
		if !ok {
			continue
		}
		if bound[c.ID] && !open[c.ID] {
			continue
		}
		candidates = append(candidates, markerCard{card: c, number: n})
	}

	if len(candidates) > 0 {
		if err := d.deriveFromMarkers(ctx, board, lists, candidates, &rep); err != nil {
			return rep, err
		}
	}

	if err := d.bindCompletedLists(ctx, board, lists, &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func (d *SprintDeriver) deriveFromMarkers(ctx context.Context, board ir.Board, lists []ir.List, candidates []markerCard, rep *SprintReport) error {
	ids := make([]string, len(candidates))
	for i, m := range candidates {
		ids[i] = m.card.ExternalID
	}

	var dues ir.DueDates
	if d.dues != nil {
		var err error
		dues, err = d.dues.DueDates(ctx, ids)
		if err != nil {
			slog.Warn("due date lookup failed, deferring sprint markers",
				"board", board.ExternalID, "markers", len(ids), "error", err)
			rep.Deferred = append(rep.Deferred, ids...)
			return nil
		}
	}

	active := listIDsNamed(lists, d.profile.Active)

	for _, m := range candidates {
		due, ok := dues[m.card.ExternalID]
		if !ok {
			slog.Debug("sprint marker has no due date yet", "card", m.card.ExternalID, "sprint", m.number)
			rep.Deferred = append(rep.Deferred, m.card.ExternalID)
			continue
		}

		first, ok, err := d.store.FirstActionInLists(ctx, m.card.ID, active)
		if err != nil {
			return err
		}
		if !ok {
			slog.Debug("sprint marker never reached an active list", "card", m.card.ExternalID, "sprint", m.number)
			rep.Deferred = append(rep.Deferred, m.card.ExternalID)
			continue
		}

		sp, err := d.store.UpsertSprint(ctx, ir.Sprint{
			BoardID:      board.ID,
			Number:       m.number,
			Name:         m.card.Name,
			MarkerCardID: m.card.ID,
			Start:        first.At,
			End:          due.UTC().Truncate(time.Millisecond),
		})
		if errors.Is(err, store.ErrSprintMarkerConflict) {
			text := fmt.Sprintf("Sprint %d is already defined by card %q; card %q was ignored. Rename one of them.",
				m.number, sp.Name, m.card.Name)
			if _, err := d.store.AddBoardMessage(ctx, board.ID, ir.MessageWarning, text, d.now()); err != nil {
				return err
			}
			cerr := &ReconcileError{Code: ErrCodeConflict, Message: text, Board: board.ExternalID}
			slog.Warn("duplicate sprint marker", "board", board.ExternalID, "sprint", m.number,
				"existing", sp.Name, "ignored", m.card.Name)
			rep.Conflicts = append(rep.Conflicts, cerr)
			continue
		}
		if err != nil {
			return err
		}

		slog.Info("sprint derived", "board", board.ExternalID, "sprint", sp.Number,
			"start", sp.Start, "end", sp.End)
		rep.Touched = append(rep.Touched, sp)
	}
	return nil
}

// bindCompletedLists links every sprint without a completed-work list to
// the matching list with the most recent ledger activity.
func (d *SprintDeriver) bindCompletedLists(ctx context.Context, board ir.Board, lists []ir.List, rep *SprintReport) error {
	sprints, err := d.store.Sprints(ctx, board.ID)
	if err != nil {
		return err
	}

	type candidate struct {
		list ir.List
		last time.Time
	}
	byNumber := map[int][]candidate{}
	for _, l := range lists {
		m := d.completed.FindStringSubmatch(l.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		last, _, err := d.store.LastListActivity(ctx, l.ID)
		if err != nil {
			return err
		}
		byNumber[n] = append(byNumber[n], candidate{list: l, last: last})
	}

	for _, sp := range sprints {
		if sp.CompletedListID != nil {
			continue
		}
		cands := byNumber[sp.Number]
		if len(cands) == 0 {
			continue
		}
		sort.Slice(cands, func(i, j int) bool {
			if !cands[i].last.Equal(cands[j].last) {
				return cands[i].last.After(cands[j].last)
			}
			return cands[i].list.ID > cands[j].list.ID
		})
		best := cands[0].list

		ok, err := d.store.BindCompletedList(ctx, sp.ID, best.ID)
		if err != nil {
			return err
		}
		if ok {
			id := best.ID
			sp.CompletedListID = &id
			slog.Info("sprint bound to completed list", "board", board.ExternalID, "sprint", sp.Number, "list", best.Name)
			rep.Bound = append(rep.Bound, sp)
		}
	}
	return nil
}

// listIDsNamed returns the ids of lists whose name is one of names.
func listIDsNamed(lists []ir.List, names []string) []int64 {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[ir.NormalizeName(n)] = true
	}
	var ids []int64
	for _, l := range lists {
		if want[ir.NormalizeName(l.Name)] {
			ids = append(ids, l.ID)
		}
	}
	return ids
}
