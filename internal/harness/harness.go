package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/flowledger/internal/compiler"
	"github.com/roach88/flowledger/internal/engine"
	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
	"github.com/roach88/flowledger/internal/store"
	"github.com/roach88/flowledger/internal/testutil"
)

// defaultNow is the wall clock of a scenario that sets none: two days
// after the origin.
const defaultNow = 2 * 24 * 60

// errUnavailable is returned by the source on a fetch_error refresh.
var errUnavailable = errors.New("upstream unavailable")

// Harness holds the per-scenario fixtures.
type Harness struct {
	engine  *engine.Engine
	source  *testutil.Source
	dues    *testutil.Dues
	actions *testutil.Actions
	profile ir.BoardProfile
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Compile the profile and seed the source's snapshot and due dates
//  2. For each refresh: add its steps upstream, refresh, check the report
//  3. Evaluate assertions against the final timeline
//  4. Render the ledger
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	profile, err := compiler.CompileProfileSource(scenario.Name+".cue", []byte(scenario.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to compile profile: %w", err)
	}

	now := defaultNow
	if scenario.Now != nil {
		now = *scenario.Now
	}
	clock := testutil.NewWallClock(testutil.At(now))

	h := &Harness{
		engine: engine.New(st,
			engine.WithRunIDGenerator(testutil.NewFixedRunID(scenario.Name)),
			engine.WithNow(clock.Now)),
		source:  testutil.NewSource(),
		dues:    &testutil.Dues{Dates: ir.DueDates{}},
		actions: testutil.NewActions(scenario.Board),
		profile: profile,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	states := make([]ir.RawItemState, 0, len(scenario.Snapshot))
	for _, c := range scenario.Snapshot {
		states = append(states, ir.RawItemState{
			CardID:   c.Card,
			Name:     c.Name,
			ListID:   c.List,
			ListName: c.ListName,
			Closed:   c.Closed,
		})
	}
	h.source.SetSnapshot(states...)
	for card, min := range scenario.Dues {
		h.dues.Dates[card] = testutil.At(min)
	}

	ctx := context.Background()
	result := NewResult()

	for i, r := range scenario.Refreshes {
		rep, err := h.refresh(ctx, scenario, r)
		if err != nil {
			return nil, fmt.Errorf("refresh %d: %w", i, err)
		}
		result.Reports = append(result.Reports, rep)
		for _, msg := range checkReport(rep, r.Expect) {
			result.AddError(fmt.Sprintf("refresh %d: %s", i, msg))
		}
	}

	tl, err := query.Open(ctx, st, scenario.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline: %w", err)
	}
	actx := &AssertionContext{Ctx: ctx, Store: st, Timeline: tl}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	ledger, err := RenderLedger(ctx, st, scenario.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to render ledger: %w", err)
	}
	result.Ledger = ledger

	h.logger.Debug("scenario complete",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors))
	return result, nil
}

// refresh adds the refresh's steps upstream and reconciles once.
func (h *Harness) refresh(ctx context.Context, scenario *Scenario, r Refresh) (*engine.Report, error) {
	for _, st := range r.Steps {
		h.source.Add(h.build(st))
	}

	h.source.FetchErr = nil
	if r.FetchError {
		h.source.FetchErr = errUnavailable
	}

	var src engine.EventSource = h.source
	if r.Replay {
		src = replaySource{h.source}
	}

	return h.engine.Refresh(ctx, engine.RefreshRequest{
		Board:     scenario.Board,
		BoardName: scenario.BoardName,
		Source:    src,
		Dues:      h.dues,
		Profile:   h.profile,
	})
}

// build converts a step to an upstream action.
func (h *Harness) build(st Step) ir.RawEvent {
	a, at := h.actions, testutil.At(st.At)

	var raw ir.RawEvent
	switch st.Do {
	case StepCreate:
		raw = a.Create(at, st.Card, st.Name, st.List, st.ListName)
	case StepCopy:
		raw = a.Copy(at, st.Card, st.Name, st.List, st.ListName)
	case StepMove:
		raw = a.Move(at, st.Card, st.Name, st.From, st.FromName, st.List, st.ListName)
	case StepRename:
		raw = a.Rename(at, st.Card, st.OldName, st.Name, st.List)
	case StepArchive:
		raw = a.Archive(at, st.Card, st.Name, st.List)
	case StepOpen:
		raw = a.Open(at, st.Card, st.Name, st.List, st.ListName)
	case StepDelete:
		raw = a.Delete(at, st.Card)
	default:
		raw = a.Typed(st.Do, at, st.Card)
	}
	if st.ID != "" {
		raw.ID = st.ID
	}
	return raw
}

// replaySource fetches the whole history regardless of the checkpoint.
type replaySource struct {
	*testutil.Source
}

func (r replaySource) FetchEvents(ctx context.Context, board string, since *time.Time) ([]ir.RawEvent, error) {
	return r.Source.FetchEvents(ctx, board, nil)
}

// checkReport compares rep against the expected counters.
func checkReport(rep *engine.Report, want *ReportExpect) []string {
	if want == nil {
		return nil
	}
	var errs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("%s = %d, want %d", name, got, *want))
		}
	}
	check("fetched", want.Fetched, rep.Fetched)
	check("applied", want.Applied, rep.Applied)
	check("skipped", want.Skipped, rep.Skipped)
	check("rejected", want.Rejected, rep.Rejected)
	check("dropped", want.Dropped, rep.Dropped)
	check("conflicts", want.Conflicts, rep.Conflicts)
	check("snapshot", want.Snapshot, rep.Snapshot)
	if want.Deferred != nil && *want.Deferred != rep.Deferred {
		errs = append(errs, fmt.Sprintf("deferred = %t, want %t", rep.Deferred, *want.Deferred))
	}
	return errs
}
