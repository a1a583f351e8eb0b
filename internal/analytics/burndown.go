package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
)

// day is the burndown tick width.
const day = 24 * time.Hour

// BurndownRequest selects a burndown series.
type BurndownRequest struct {
	From time.Time
	To   time.Time
	// Now stops the series: ticks after Now are not computed.
	Now time.Time

	InProgress []string
	Completed  []string

	// Baseline is the ideal line's starting value. Nil uses the
	// in-progress points at the first tick.
	Baseline *int
}

// DoneCard is a card that reached a completed list during a tick.
type DoneCard struct {
	CardID int64     `json:"card_id"`
	Name   string    `json:"name"`
	Points int       `json:"points"`
	At     time.Time `json:"at"`
}

// BurndownTick is one day of a burndown.
//
// Done is the points that arrived in a completed list during the day
// ending at At. NotDone is the in-progress points at At. Ideal is set on
// the first and last tick only. A Future tick marks the end of a sprint
// that is still running and carries only the ideal.
type BurndownTick struct {
	At        time.Time  `json:"at"`
	Done      int        `json:"done"`
	NotDone   int        `json:"not_done"`
	Ideal     *int       `json:"ideal,omitempty"`
	Future    bool       `json:"future,omitempty"`
	DoneCards []DoneCard `json:"done_cards"`
}

// BurndownResult is a burndown series. Missing names requested lists the
// board does not have; they count as empty.
type BurndownResult struct {
	Ticks   []BurndownTick `json:"ticks"`
	Missing []string       `json:"missing,omitempty"`
}

// Burndown computes one tick per day from From through To.
//
// When a tick falls after Now, a final Future tick at To is appended and
// the series stops. The ideal line runs from the baseline at the first
// tick to 0 at the last.
func Burndown(ctx context.Context, tl Timeline, req BurndownRequest) (BurndownResult, error) {
	ticks, missing, err := burndown(ctx, tl, req)
	if err != nil {
		return BurndownResult{}, err
	}
	return BurndownResult{Ticks: ticks, Missing: missing}, nil
}

func burndown(ctx context.Context, tl Timeline, req BurndownRequest) ([]BurndownTick, []string, error) {
	if req.To.Before(req.From) {
		return nil, nil, fmt.Errorf("burndown: range ends %s before it starts %s", req.To, req.From)
	}
	if n := req.To.Sub(req.From)/day + 1; n > maxTicks {
		return nil, nil, errors.New("burndown: range too long")
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	inProgress, err := tl.ResolveAny(req.InProgress)
	if err != nil {
		return nil, nil, err
	}
	completed, err := tl.ResolveAny(req.Completed)
	if err != nil {
		return nil, nil, err
	}
	missing := append(unresolved(req.InProgress, inProgress), unresolved(req.Completed, completed)...)
	progressLists := query.Flatten(req.InProgress, inProgress)
	completedLists := query.Flatten(req.Completed, completed)

	ticks := []BurndownTick{}
	for at := req.From; !at.After(req.To); at = at.Add(day) {
		if at.After(req.Now) {
			zero := 0
			ticks = append(ticks, BurndownTick{At: req.To, Ideal: &zero, Future: true, DoneCards: []DoneCard{}})
			break
		}

		arrivals, err := tl.ArrivalsIn(ctx, completedLists, at.Add(-day), at)
		if err != nil {
			return nil, nil, err
		}
		tick := BurndownTick{At: at, DoneCards: []DoneCard{}}
		for _, a := range arrivals {
			tick.Done += a.Size.Points
			tick.DoneCards = append(tick.DoneCards, DoneCard{
				CardID: a.CardID,
				Name:   a.CardName,
				Points: a.Size.Points,
				At:     a.Stat.At,
			})
		}

		tick.NotDone, err = tl.SumAt(ctx, progressLists, at, ir.MetricPoints)
		if err != nil {
			return nil, nil, err
		}

		if len(ticks) == 0 {
			baseline := tick.NotDone
			if req.Baseline != nil {
				baseline = *req.Baseline
			}
			tick.Ideal = &baseline
		}
		ticks = append(ticks, tick)
	}

	if last := &ticks[len(ticks)-1]; len(ticks) > 1 && !last.Future {
		zero := 0
		last.Ideal = &zero
	}
	return ticks, missing, nil
}
