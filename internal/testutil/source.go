package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
)

// Source is an in-memory event source.
//
// FetchEvents honours since the way a paging upstream does: actions at or
// after since are returned, in the order they were added.
type Source struct {
	mu sync.Mutex

	events   []ir.RawEvent
	snapshot []ir.RawItemState

	// FetchErr and SnapshotErr, when set, are returned by the matching
	// fetch instead of data.
	FetchErr    error
	SnapshotErr error

	// Since records the since argument of every FetchEvents call.
	Since []*time.Time
	// SnapshotAt records the asOf argument of every FetchSnapshot call.
	SnapshotAt []time.Time
}

// NewSource creates a source holding events.
func NewSource(events ...ir.RawEvent) *Source {
	return &Source{events: events}
}

// Add appends actions to the upstream history.
func (s *Source) Add(events ...ir.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// SetSnapshot sets the card states FetchSnapshot returns.
func (s *Source) SetSnapshot(states ...ir.RawItemState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = states
}

// FetchEvents implements engine.EventSource.
func (s *Source) FetchEvents(ctx context.Context, board string, since *time.Time) ([]ir.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Since = append(s.Since, since)
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}

	out := make([]ir.RawEvent, 0, len(s.events))
	for _, ev := range s.events {
		if since != nil {
			at, err := event.ParseTime(ev.Date)
			if err == nil && at.Before(*since) {
				continue
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// FetchSnapshot implements engine.EventSource.
func (s *Source) FetchSnapshot(ctx context.Context, board string, asOf time.Time) ([]ir.RawItemState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SnapshotAt = append(s.SnapshotAt, asOf)
	if s.SnapshotErr != nil {
		return nil, s.SnapshotErr
	}
	return append([]ir.RawItemState(nil), s.snapshot...), nil
}

// Dues is a fixed due date lookup.
type Dues struct {
	Dates ir.DueDates
	Err   error

	mu    sync.Mutex
	Calls [][]string
}

// DueDates implements engine.DueDateLookup.
func (d *Dues) DueDates(ctx context.Context, cardIDs []string) (ir.DueDates, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Calls = append(d.Calls, append([]string(nil), cardIDs...))
	if d.Err != nil {
		return nil, d.Err
	}
	out := make(ir.DueDates, len(cardIDs))
	for _, id := range cardIDs {
		if t, ok := d.Dates[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}
