package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/store"
)

// EventSource delivers raw upstream actions for a board.
type EventSource interface {
	// FetchEvents returns the board's actions oldest first. since is nil on
	// the first refresh; otherwise actions at or after since are returned.
	FetchEvents(ctx context.Context, board string, since *time.Time) ([]ir.RawEvent, error)

	// FetchSnapshot returns the cards on the board as of asOf, used to
	// seed cards that existed before the fetched history begins.
	FetchSnapshot(ctx context.Context, board string, asOf time.Time) ([]ir.RawItemState, error)
}

// RefreshRequest is one reconciliation of one board. Collaborators are
// scoped to the call.
type RefreshRequest struct {
	Board     string // external board id
	BoardName string // optional display name
	Source    EventSource
	Dues      DueDateLookup
	Profile   ir.BoardProfile
}

// Report summarizes a refresh.
type Report struct {
	RunID         string   `json:"run_id"`
	EngineVersion string   `json:"engine_version"`
	Board         ir.Board `json:"board"`

	Fetched   int `json:"fetched"`
	Snapshot  int `json:"snapshot"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Rejected  int `json:"rejected"`
	Dropped   int `json:"dropped"`
	Conflicts int `json:"conflicts"`

	// Deferred is true when the event source was unavailable; nothing was
	// fetched and the next refresh starts from the same checkpoint.
	Deferred bool `json:"deferred"`

	Sprints  []ir.Sprint `json:"sprints"`
	Warnings []string    `json:"warnings"`
}

// Engine reconciles boards into the store.
//
// Thread-safety model:
//   - Refresh(): safe from any goroutine; refreshes of the same board are
//     serialized, different boards proceed in parallel
type Engine struct {
	store *store.Store
	locks *BoardLocks
	runID RunIDGenerator
	now   func() time.Time

	clockMu sync.Mutex
	clock   *Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunIDGenerator sets the generator for refresh run ids.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runID = g }
}

// WithNow sets the wall clock used for snapshot fallbacks, sprint
// openness and message timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocks shares a BoardLocks between engines on the same store.
func WithLocks(l *BoardLocks) Option {
	return func(e *Engine) { e.locks = l }
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		locks: &BoardLocks{},
		runID: UUIDv7Generator{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *store.Store {
	return e.store
}

func (e *Engine) ensureClock(ctx context.Context) (*Clock, error) {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	if e.clock != nil {
		return e.clock, nil
	}
	seq, err := e.store.MaxSeq(ctx)
	if err != nil {
		return nil, err
	}
	e.clock = ResumeClock(seq)
	return e.clock, nil
}

// Refresh reconciles the actions fetched since the board's checkpoint.
//
// Per-action problems (rejections, stale or unrecoverable actions,
// duplicate derivations) are logged and counted in the Report. Only a
// storage failure aborts: the returned error is a *ReconcileError with
// ErrCodeStorage and every action committed before it stays committed.
func (e *Engine) Refresh(ctx context.Context, req RefreshRequest) (*Report, error) {
	if req.Board == "" {
		return nil, &ReconcileError{Code: ErrCodeInvalidRequest, Message: "board is required"}
	}
	if req.Source == nil {
		return nil, &ReconcileError{Code: ErrCodeInvalidRequest, Message: "event source is required", Board: req.Board}
	}

	unlock := e.locks.Lock(req.Board)
	defer unlock()

	clock, err := e.ensureClock(ctx)
	if err != nil {
		return nil, storageError(req.Board, "", err)
	}

	r := &refresh{
		engine: e,
		req:    req,
		clock:  clock,
		log:    slog.With("board", req.Board),
		report: &Report{RunID: e.runID.Generate(), EngineVersion: ir.EngineVersion, Sprints: []ir.Sprint{}, Warnings: []string{}},
	}
	r.log = r.log.With("run", r.report.RunID)

	if err := r.run(ctx); err != nil {
		return r.report, err
	}
	return r.report, nil
}

// refresh is the state of one Refresh call.
type refresh struct {
	engine *Engine
	req    RefreshRequest
	clock  *Clock
	log    *slog.Logger
	report *Report

	board      ir.Board
	checkpoint *time.Time
	lists      map[string]ir.List // by external id
	states     map[string]CardState
	ledger     *Ledger
}

func (r *refresh) run(ctx context.Context) error {
	s := r.engine.store
	r.log.Info("refresh started")

	board, err := s.EnsureBoard(ctx, r.req.Board, r.req.BoardName)
	if err != nil {
		return storageError(r.req.Board, "", err)
	}
	r.board = board
	r.report.Board = board

	cp, ok, err := s.Checkpoint(ctx, board.ID)
	if err != nil {
		return storageError(r.req.Board, "", err)
	}
	if ok {
		r.checkpoint = &cp
	}

	raws, err := r.req.Source.FetchEvents(ctx, r.req.Board, r.checkpoint)
	if err != nil {
		r.warn(&ReconcileError{Code: ErrCodeDeferred, Message: "event source unavailable", Board: r.req.Board, Err: err})
		r.report.Deferred = true
		return nil
	}
	r.report.Fetched = len(raws)

	events := r.normalize(raws)
	if r.checkpoint == nil {
		events = append(events, r.bootstrap(ctx, events)...)
	}
	sortEvents(events)

	if err := r.load(ctx); err != nil {
		return err
	}

	for _, ev := range events {
		if err := r.apply(ctx, ev); err != nil {
			return err
		}
	}

	deriver, err := NewSprintDeriver(s, r.req.Profile, r.req.Dues, r.engine.now)
	if err != nil {
		r.warn(&ReconcileError{Code: ErrCodeInvalidRequest, Message: "sprint derivation skipped", Board: r.req.Board, Err: err})
	} else {
		srep, err := deriver.Derive(ctx, board)
		if err != nil {
			return storageError(r.req.Board, "", err)
		}
		r.report.Sprints = append(r.report.Sprints, srep.Touched...)
		for _, c := range srep.Conflicts {
			r.report.Conflicts++
			r.report.Warnings = append(r.report.Warnings, c.Error())
		}
	}

	r.log.Info("refresh complete",
		"fetched", r.report.Fetched,
		"snapshot", r.report.Snapshot,
		"applied", r.report.Applied,
		"skipped", r.report.Skipped,
		"rejected", r.report.Rejected,
		"dropped", r.report.Dropped,
		"conflicts", r.report.Conflicts,
		"sprints", len(r.report.Sprints),
	)
	return nil
}

// normalize converts raw actions, dropping and logging rejects.
func (r *refresh) normalize(raws []ir.RawEvent) []event.Event {
	events := make([]event.Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := event.Normalize(raw, r.req.Board)
		if err != nil {
			r.report.Rejected++
			r.log.Warn("action rejected", "action", raw.ID, "type", raw.Type, "reason", event.RejectReason(err), "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events
}

// bootstrap synthesizes a creation for every open card of the snapshot
// taken just before the earliest fetched action. Sources may return a
// card's current state rather than its state at asOf, so each card is
// rewound to where its first fetched action found it.
func (r *refresh) bootstrap(ctx context.Context, events []event.Event) []event.Event {
	asOf := r.engine.now().UTC().Truncate(time.Millisecond)
	first := make(map[string]event.Event)
	for _, ev := range events {
		h := ev.Head()
		if at := h.At.Add(-time.Millisecond); at.Before(asOf) {
			asOf = at
		}
		if cur, ok := first[h.CardID]; !ok || earlier(h, cur.Head()) {
			first[h.CardID] = ev
		}
	}

	states, err := r.req.Source.FetchSnapshot(ctx, r.req.Board, asOf)
	if err != nil {
		r.warn(&ReconcileError{Code: ErrCodeDeferred, Message: "snapshot unavailable, pre-existing cards not seeded", Board: r.req.Board, Err: err})
		return nil
	}

	var out []event.Event
	for _, st := range states {
		if st.Closed || st.ListID == "" || st.CardID == "" {
			continue
		}
		st, ok := seedState(st, first[st.CardID])
		if !ok {
			continue
		}
		ev, err := event.Normalize(event.SyntheticCreate(st, r.req.Board, asOf), r.req.Board)
		if err != nil {
			r.log.Warn("snapshot card rejected", "card", st.CardID, "error", err)
			continue
		}
		out = append(out, ev)
	}
	r.report.Snapshot = len(out)
	if len(out) > 0 {
		r.log.Info("seeding cards from snapshot", "cards", len(out), "as_of", asOf)
	}
	return out
}

// seedState places a snapshot card where its first fetched action found
// it. ok is false when that action is the card's arrival on the board or
// its reopening, since the card was then not open before history began.
func seedState(st ir.RawItemState, first event.Event) (ir.RawItemState, bool) {
	switch ev := first.(type) {
	case *event.Create, *event.CreatedElsewhere:
		return st, false
	case *event.MoveOrRename:
		if ev.Opening {
			return st, false
		}
		ref := ev.Before
		if ref == nil {
			ref = ev.Target
		}
		if ref != nil && ref.ID != st.ListID {
			st.ListID, st.ListName = ref.ID, ref.Name
		} else if ref != nil && ref.Name != "" {
			st.ListName = ref.Name
		}
	}
	return st, true
}

func earlier(a, b *event.Header) bool {
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	return a.ExternalID < b.ExternalID
}

// sortEvents orders a batch by (time, external id). The order of the input
// therefore never matters.
func sortEvents(events []event.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return earlier(events[i].Head(), events[j].Head())
	})
}

// load reads lists, card states and running totals committed by earlier
// refreshes.
func (r *refresh) load(ctx context.Context) error {
	s := r.engine.store

	lists, err := s.Lists(ctx, r.board.ID)
	if err != nil {
		return storageError(r.req.Board, "", err)
	}
	r.lists = make(map[string]ir.List, len(lists))
	byID := make(map[int64]ir.List, len(lists))
	for _, l := range lists {
		r.lists[l.ExternalID] = l
		byID[l.ID] = l
	}

	snaps, err := s.CardStates(ctx, r.board.ID)
	if err != nil {
		return storageError(r.req.Board, "", err)
	}
	r.states = make(map[string]CardState, len(snaps))
	for _, snap := range snaps {
		a := snap.Action
		st := CardState{
			Known:        true,
			Archived:     a.Archived,
			Deleted:      a.Deleted,
			Name:         a.CardName,
			Size:         a.Size,
			LastActionID: a.ID,
			LastAt:       a.At,
		}
		if a.ListID != nil {
			st.ListID = byID[*a.ListID].ExternalID
		}
		r.states[snap.Card.ExternalID] = st
	}

	latest, err := s.LatestStats(ctx, r.board.ID)
	if err != nil {
		return storageError(r.req.Board, "", err)
	}
	r.ledger = NewLedger(latest)
	return nil
}

// apply reconciles one action and commits it with its ledger entries.
func (r *refresh) apply(ctx context.Context, ev event.Event) error {
	s := r.engine.store
	h := ev.Head()

	digest, err := ir.PayloadDigest(h.Payload)
	if err != nil {
		r.report.Rejected++
		r.log.Warn("action payload is not valid JSON", "action", h.ExternalID, "error", err)
		return nil
	}

	existing, found, err := s.ActionByExternalID(ctx, r.board.ID, h.ExternalID)
	if err != nil {
		return storageError(r.req.Board, h.ExternalID, err)
	}
	if found {
		r.report.Skipped++
		if existing.PayloadDigest != digest {
			r.warn(&ReconcileError{
				Code:    ErrCodeConflict,
				Message: "committed action changed upstream; keeping the original",
				Board:   r.req.Board,
				Action:  h.ExternalID,
			})
		}
		return nil
	}

	if r.checkpoint != nil && h.At.Before(*r.checkpoint) {
		r.report.Dropped++
		r.log.Warn("action older than checkpoint", "action", h.ExternalID,
			"at", h.At, "checkpoint", *r.checkpoint, "code", ErrCodeStale)
		return nil
	}

	prev := r.states[h.CardID]
	next, tr := prev.Apply(ev)
	if tr.Drop {
		r.report.Dropped++
		r.log.Warn("action dropped", "action", h.ExternalID, "card", h.CardID, "transition", tr.Kind, "error", tr.Err)
		return nil
	}
	if tr.Warning != "" {
		r.log.Warn(tr.Warning, "action", h.ExternalID)
		r.report.Warnings = append(r.report.Warnings, tr.Warning)
	}

	// Lists and the card are interned inside the action's unit, so a
	// failed commit leaves no rename behind.
	u, err := s.Begin(ctx)
	if err != nil {
		return storageError(r.req.Board, h.ExternalID, err)
	}
	defer u.Rollback()
	staged := map[string]ir.List{}

	card, err := u.EnsureCard(ctx, r.board.ID, h.CardID, "")
	if err != nil {
		return storageError(r.req.Board, h.ExternalID, err)
	}

	// Record list names carried by the payload, including the list a move
	// left, so renames are tracked even for lists the card passes through.
	if mv, ok := ev.(*event.MoveOrRename); ok && mv.Before != nil {
		if _, err := r.ensureList(ctx, u, staged, *mv.Before); err != nil {
			return storageError(r.req.Board, h.ExternalID, err)
		}
	}
	var listID *int64
	if next.ListID != "" {
		ref := event.ListRef{ID: next.ListID}
		if t := event.TargetList(ev); t != nil && t.ID == next.ListID {
			ref = *t
		}
		l, err := r.ensureList(ctx, u, staged, ref)
		if err != nil {
			return storageError(r.req.Board, h.ExternalID, err)
		}
		id := l.ID
		listID = &id
	}

	deltas := Deltas(tr)
	resolved := make([]ListDelta, 0, len(deltas))
	for _, d := range deltas {
		l, err := r.ensureList(ctx, u, staged, event.ListRef{ID: d.List})
		if err != nil {
			return storageError(r.req.Board, h.ExternalID, err)
		}
		resolved = append(resolved, ListDelta{ListID: l.ID, Diff: d.Diff, Points: d.Points})
	}
	stats := r.ledger.Plan(resolved)

	var previousID *int64
	if prev.Known && prev.LastActionID != 0 {
		id := prev.LastActionID
		previousID = &id
	}

	action := ir.CardAction{
		BoardID:       r.board.ID,
		CardID:        card.ID,
		ExternalID:    h.ExternalID,
		At:            h.At,
		Seq:           r.clock.Next(),
		Kind:          ev.Kind(),
		ActionType:    h.ActionType,
		ListID:        listID,
		Size:          next.Size,
		CardName:      next.Name,
		Archived:      next.Archived,
		Deleted:       next.Deleted,
		PreviousID:    previousID,
		PayloadDigest: digest,
	}

	res, err := u.Commit(ctx, store.Commit{Action: action, Payload: h.Payload, Stats: stats})
	if err != nil {
		return storageError(r.req.Board, h.ExternalID, err)
	}
	if !res.Inserted {
		r.report.Skipped++
		return nil
	}
	for id, l := range staged {
		r.lists[id] = l
	}
	if res.StatConflicts > 0 {
		r.warn(&ReconcileError{
			Code:    ErrCodeConflict,
			Message: fmt.Sprintf("%d ledger entries already existed and were kept", res.StatConflicts),
			Board:   r.req.Board,
			Action:  h.ExternalID,
		})
	}

	r.ledger.Post(stats)
	next.LastActionID = res.ActionID
	next.LastAt = h.At
	r.states[h.CardID] = next
	r.report.Applied++

	r.log.Debug("action applied", "action", h.ExternalID, "card", h.CardID,
		"transition", tr.Kind, "list", next.ListID, "entries", len(stats))
	return nil
}

// ensureList interns a list within u, applying a rename when ref carries a
// name that differs from the known one. Results are staged until the unit
// commits.
func (r *refresh) ensureList(ctx context.Context, u *store.Unit, staged map[string]ir.List, ref event.ListRef) (ir.List, error) {
	known, ok := staged[ref.ID]
	if !ok {
		known, ok = r.lists[ref.ID]
	}
	if ok && (ref.Name == "" || ref.Name == known.Name) {
		return known, nil
	}
	l, err := u.EnsureList(ctx, r.board.ID, ref.ID, ref.Name)
	if err != nil {
		return ir.List{}, err
	}
	staged[ref.ID] = l
	return l, nil
}

// warn logs a non-fatal reconcile error and records it in the report.
func (r *refresh) warn(err *ReconcileError) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if IsConflictError(err) {
		r.report.Conflicts++
	}
	r.log.Warn(err.Message, "code", err.Code, "action", err.Action, "error", err.Err)
	r.report.Warnings = append(r.report.Warnings, err.Error())
}
