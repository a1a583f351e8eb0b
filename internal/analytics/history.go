package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// HistoryPoint is a list's totals right after a change.
type HistoryPoint struct {
	At     time.Time `json:"at"`
	Cards  int       `json:"cards"`
	Points int       `json:"points"`
}

// ListHistory returns the totals of the lists named name after every
// change within [from, to]. Lists sharing the name are added together.
func ListHistory(ctx context.Context, tl Timeline, name string, from, to time.Time) ([]HistoryPoint, error) {
	resolved, err := tl.Resolve([]string{name})
	if err != nil {
		return nil, err
	}
	lists := resolved[name]

	seen := map[time.Time]bool{}
	var instants []time.Time
	for _, l := range lists {
		stats, err := tl.ListStatsIn(ctx, l.ID, from, to)
		if err != nil {
			return nil, err
		}
		for _, st := range stats {
			if !seen[st.At] {
				seen[st.At] = true
				instants = append(instants, st.At)
			}
		}
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })

	points := make([]HistoryPoint, 0, len(instants))
	for _, at := range instants {
		cards, err := tl.SumAt(ctx, lists, at, ir.MetricCards)
		if err != nil {
			return nil, err
		}
		pts, err := tl.SumAt(ctx, lists, at, ir.MetricPoints)
		if err != nil {
			return nil, err
		}
		points = append(points, HistoryPoint{At: at, Cards: cards, Points: pts})
	}
	return points, nil
}
