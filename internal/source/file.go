package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
)

// File is an event source reading a board file. The file is re-read on
// every fetch, so appending actions to it and refreshing again behaves
// like a paging upstream.
type File struct {
	path      string
	cardsPath string
	duesPath  string
	logger    *slog.Logger
}

// FileOption configures a File.
type FileOption func(*File)

// WithCards reads snapshot card states from a separate JSON array of
// card states instead of the export's cards.
func WithCards(path string) FileOption {
	return func(f *File) { f.cardsPath = path }
}

// WithDueDates reads due dates from a JSON object mapping card ids to
// timestamps instead of the export's cards.
func WithDueDates(path string) FileOption {
	return func(f *File) { f.duesPath = path }
}

// WithLogger sets the logger for skipped records.
func WithLogger(l *slog.Logger) FileOption {
	return func(f *File) { f.logger = l }
}

// NewFile creates a source for the board file at path.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// export is the subset of a board export flowledger reads.
type export struct {
	Actions []ir.RawEvent `json:"actions"`
	Cards   []exportCard  `json:"cards"`
	Lists   []ir.RawRef   `json:"lists"`
}

type exportCard struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	IDList string  `json:"idList"`
	Closed bool    `json:"closed"`
	Due    *string `json:"due"`
}

func (f *File) load() (export, error) {
	data, err := readFile(f.path)
	if err != nil {
		return export{}, err
	}
	var doc export
	if isObject(data) {
		err = json.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc.Actions)
	}
	if err != nil {
		return export{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return doc, nil
}

// FetchEvents returns the card actions of board at or after since, oldest
// first. Action types flowledger does not track and actions of other
// boards are left out.
func (f *File) FetchEvents(ctx context.Context, board string, since *time.Time) ([]ir.RawEvent, error) {
	doc, err := f.load()
	if err != nil {
		return nil, err
	}

	type dated struct {
		raw ir.RawEvent
		at  time.Time
	}
	var out []dated
	for _, raw := range doc.Actions {
		if !slices.Contains(event.Types, raw.Type) {
			continue
		}
		if b := raw.Data.Board; b != nil && b.ID != board {
			continue
		}
		// Unparsable dates pass through; the engine rejects them.
		at, err := event.ParseTime(raw.Date)
		if err == nil && since != nil && at.Before(*since) {
			continue
		}
		out = append(out, dated{raw: raw, at: at})
	}

	// Exports list newest first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })

	events := make([]ir.RawEvent, len(out))
	for i, d := range out {
		events[i] = d.raw
	}
	f.logger.Debug("fetched events",
		"board", board,
		"path", f.path,
		"count", len(events))
	return events, nil
}

// FetchSnapshot returns the cards the file records. A file holds one state
// of the board, so asOf is not consulted.
func (f *File) FetchSnapshot(ctx context.Context, board string, asOf time.Time) ([]ir.RawItemState, error) {
	if f.cardsPath != "" {
		data, err := readFile(f.cardsPath)
		if err != nil {
			return nil, err
		}
		var states []ir.RawItemState
		if err := json.Unmarshal(data, &states); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.cardsPath, err)
		}
		return states, nil
	}

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(doc.Lists))
	for _, l := range doc.Lists {
		names[l.ID] = l.Name
	}
	states := make([]ir.RawItemState, 0, len(doc.Cards))
	for _, c := range doc.Cards {
		states = append(states, ir.RawItemState{
			CardID:   c.ID,
			Name:     c.Name,
			ListID:   c.IDList,
			ListName: names[c.IDList],
			Closed:   c.Closed,
		})
	}
	return states, nil
}

// DueDates implements engine.DueDateLookup.
func (f *File) DueDates(ctx context.Context, cardIDs []string) (ir.DueDates, error) {
	all, err := f.dueDates()
	if err != nil {
		return nil, err
	}
	out := make(ir.DueDates, len(cardIDs))
	for _, id := range cardIDs {
		if t, ok := all[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (f *File) dueDates() (ir.DueDates, error) {
	raw := map[string]*string{}
	if f.duesPath != "" {
		data, err := readFile(f.duesPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.duesPath, err)
		}
	} else {
		doc, err := f.load()
		if err != nil {
			return nil, err
		}
		for _, c := range doc.Cards {
			raw[c.ID] = c.Due
		}
	}

	dues := make(ir.DueDates, len(raw))
	for id, s := range raw {
		if s == nil || *s == "" {
			continue
		}
		t, err := event.ParseTime(*s)
		if err != nil {
			f.logger.Warn("skipping unparsable due date",
				"card", id,
				"due", *s,
				"error", err)
			continue
		}
		dues[id] = t
	}
	return dues, nil
}
