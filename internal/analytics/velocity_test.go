package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
	"github.com/roach88/flowledger/internal/testutil"
)

func TestSprintMetrics_DerivedSprint(t *testing.T) {
	tl := sprintBoard(t)
	ctx := context.Background()

	sprints, err := tl.Sprints(ctx)
	require.NoError(t, err)
	require.Len(t, sprints, 1)
	sp := sprints[0]
	assert.Equal(t, 7, sp.Number)
	assert.Equal(t, testutil.Day(0).Add(12*time.Hour), sp.Start)
	assert.Equal(t, testutil.Day(7), sp.End)

	commitment := ir.DefaultProfile().Commitment
	pts, err := SprintMetrics(ctx, tl, sp, commitment)
	require.NoError(t, err)
	assert.Equal(t, 5, pts.Committed)
	assert.Equal(t, 0, pts.Done, "no completed list bound")

	complete := tl.Named("Complete")[0].ID
	sp.CompletedListID = &complete
	pts, err = SprintMetrics(ctx, tl, sp, commitment)
	require.NoError(t, err)
	assert.Equal(t, 5, pts.Done)
}

func TestSprintMetrics_UnknownCommitment(t *testing.T) {
	tl := sprintBoard(t)
	_, err := SprintMetrics(context.Background(), tl, ir.Sprint{Start: testutil.Day(1)}, []string{"Ready"})
	assert.True(t, query.IsValidationError(err))
}

func TestVelocity_RunningMeanOldestFirst(t *testing.T) {
	points := []SprintPoints{
		{Sprint: ir.Sprint{Number: 3}, Committed: 10, Done: 9},
		{Sprint: ir.Sprint{Number: 2}, Committed: 8, Done: 6},
		{Sprint: ir.Sprint{Number: 1}, Committed: 5, Done: 3},
	}

	got := Velocity(points)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Number)
	assert.InDelta(t, 3.0, got[0].Average, 1e-9)
	assert.InDelta(t, 4.5, got[1].Average, 1e-9)
	assert.InDelta(t, 6.0, got[2].Average, 1e-9)
	assert.Equal(t, 10, got[2].Committed)

	assert.Empty(t, Velocity(nil))
}

func TestListHistory(t *testing.T) {
	tl := sprintBoard(t)

	got, err := ListHistory(context.Background(), tl, "Complete", testutil.Day(0), testutil.Day(3))
	require.NoError(t, err)
	assert.Equal(t, []HistoryPoint{
		{At: testutil.Day(1).Add(3 * time.Hour), Cards: 1, Points: 3},
		{At: testutil.Day(2).Add(1 * time.Hour), Cards: 2, Points: 5},
	}, got)

	_, err = ListHistory(context.Background(), tl, "Shipped", testutil.Day(0), testutil.Day(3))
	assert.True(t, query.IsValidationError(err))
}
