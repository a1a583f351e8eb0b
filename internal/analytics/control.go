package analytics

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/roach88/flowledger/internal/query"
)

// CompletedCard is a card that passed every workflow checkpoint.
type CompletedCard struct {
	CardID   int64         `json:"card_id"`
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	Days     float64       `json:"days"`
	Points   int           `json:"points"`
}

// ControlResult is a control chart: completed cards by completion time and
// summary lead times. The summary is zero when no card completed.
type ControlResult struct {
	Cards []CompletedCard `json:"cards"`
	Min   time.Duration   `json:"min"`
	Max   time.Duration   `json:"max"`
	Mean  time.Duration   `json:"mean"`
}

// ControlChart reports the cards that arrived in every checkpoint group of
// workflow, in order, within [from, to].
//
// Each card's arrivals are walked newest first, matching the last
// checkpoint, then the one before it, until the first checkpoint is
// matched. The lead time runs from the first checkpoint arrival to the
// last. Only arrivals count; renames inside a list never match. All
// workflow names must exist on the board.
func ControlChart(ctx context.Context, tl Timeline, workflow [][]string, from, to time.Time) (ControlResult, error) {
	if len(workflow) == 0 {
		return ControlResult{}, errors.New("control chart: workflow is empty")
	}

	var names []string
	for _, g := range workflow {
		if len(g) == 0 {
			return ControlResult{}, errors.New("control chart: workflow has an empty checkpoint")
		}
		names = append(names, g...)
	}
	resolved, err := tl.Resolve(names)
	if err != nil {
		return ControlResult{}, err
	}

	groups := make([]map[int64]bool, len(workflow))
	for i, g := range workflow {
		groups[i] = map[int64]bool{}
		for _, n := range g {
			for _, l := range resolved[n] {
				groups[i][l.ID] = true
			}
		}
	}

	arrivals, err := tl.ArrivalsIn(ctx, query.Flatten(names, resolved), from.Add(-time.Millisecond), to)
	if err != nil {
		return ControlResult{}, err
	}

	byCard := map[int64][]query.Arrival{}
	var order []int64
	for _, a := range arrivals {
		if _, ok := byCard[a.CardID]; !ok {
			order = append(order, a.CardID)
		}
		byCard[a.CardID] = append(byCard[a.CardID], a)
	}

	res := ControlResult{Cards: []CompletedCard{}}
	for _, id := range order {
		if c, ok := matchCheckpoints(byCard[id], groups); ok {
			res.Cards = append(res.Cards, c)
		}
	}
	sort.SliceStable(res.Cards, func(i, j int) bool {
		return res.Cards[i].End.Before(res.Cards[j].End)
	})

	if len(res.Cards) > 0 {
		var total time.Duration
		res.Min = res.Cards[0].Duration
		for _, c := range res.Cards {
			res.Min = min(res.Min, c.Duration)
			res.Max = max(res.Max, c.Duration)
			total += c.Duration
		}
		res.Mean = total / time.Duration(len(res.Cards))
	}
	return res, nil
}

// matchCheckpoints walks one card's arrivals (oldest first) backwards.
func matchCheckpoints(arrivals []query.Arrival, groups []map[int64]bool) (CompletedCard, bool) {
	idx := len(groups) - 1
	var last query.Arrival
	for i := len(arrivals) - 1; i >= 0; i-- {
		a := arrivals[i]
		if !groups[idx][a.Stat.ListID] {
			continue
		}
		if idx == len(groups)-1 {
			last = a
		}
		if idx == 0 {
			d := last.Stat.At.Sub(a.Stat.At)
			return CompletedCard{
				CardID:   a.CardID,
				Name:     last.CardName,
				Start:    a.Stat.At,
				End:      last.Stat.At,
				Duration: d,
				Days:     math.Round(d.Hours()/24*10) / 10,
				Points:   last.Size.Points,
			}, true
		}
		idx--
	}
	return CompletedCard{}, false
}
