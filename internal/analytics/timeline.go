package analytics

import (
	"context"
	"time"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
)

// Timeline is the read interface analytics need.
type Timeline interface {
	Board() ir.Board
	Resolve(names []string) (map[string][]ir.List, error)
	ResolveAny(names []string) (map[string][]ir.List, error)
	ListStatAt(ctx context.Context, listID int64, at time.Time) (ir.ListStat, error)
	ListStatsIn(ctx context.Context, listID int64, from, to time.Time) ([]ir.ListStat, error)
	SumAt(ctx context.Context, lists []ir.List, at time.Time, m ir.Metric) (int, error)
	ArrivalsIn(ctx context.Context, lists []ir.List, after, through time.Time) ([]query.Arrival, error)
}

var _ Timeline = (*query.Timeline)(nil)

// maxTicks bounds the size of a generated series.
const maxTicks = 10000

// unresolved returns the names ResolveAny found no list for, in request
// order, or nil when every name resolved.
func unresolved(names []string, resolved map[string][]ir.List) []string {
	var out []string
	for _, n := range names {
		if _, ok := resolved[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}
