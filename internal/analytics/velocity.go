package analytics

import (
	"context"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
)

// SprintPoints are the committed and done points of a sprint.
type SprintPoints struct {
	Sprint    ir.Sprint `json:"sprint"`
	Committed int       `json:"committed"`
	Done      int       `json:"done"`
}

// SprintMetrics computes a sprint's points. Committed is the points in
// the commitment lists at the sprint start; every commitment name must
// exist. Done is the current points of the sprint's completed list, 0
// while none is bound.
func SprintMetrics(ctx context.Context, tl Timeline, sp ir.Sprint, commitment []string) (SprintPoints, error) {
	resolved, err := tl.Resolve(commitment)
	if err != nil {
		return SprintPoints{}, err
	}
	committed, err := tl.SumAt(ctx, query.Flatten(commitment, resolved), sp.Start, ir.MetricPoints)
	if err != nil {
		return SprintPoints{}, err
	}

	done := 0
	if sp.CompletedListID != nil {
		st, err := tl.ListStatAt(ctx, *sp.CompletedListID, query.Forever)
		if err != nil {
			return SprintPoints{}, err
		}
		done = st.Points
	}
	return SprintPoints{Sprint: sp, Committed: committed, Done: done}, nil
}

// VelocityPoint is one sprint in a velocity series. Average is the mean
// done points of this sprint and every earlier one.
type VelocityPoint struct {
	Number    int     `json:"number"`
	Name      string  `json:"name"`
	Committed int     `json:"committed"`
	Done      int     `json:"done"`
	Average   float64 `json:"average"`
}

// Velocity turns sprint points, most recent first, into a series oldest
// first with a running mean of done points.
func Velocity(points []SprintPoints) []VelocityPoint {
	out := make([]VelocityPoint, 0, len(points))
	mean := 0.0
	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		n := float64(len(out))
		mean = (n*mean + float64(p.Done)) / (n + 1)
		out = append(out, VelocityPoint{
			Number:    p.Sprint.Number,
			Name:      p.Sprint.Name,
			Committed: p.Committed,
			Done:      p.Done,
			Average:   mean,
		})
	}
	return out
}
