package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/query"
	"github.com/roach88/flowledger/internal/testutil"
)

var nextToComplete = [][]string{{"Next"}, {"Complete"}}

func TestControlChart_CompletesOnlyFullPasses(t *testing.T) {
	tl := flowBoard(t)

	res, err := ControlChart(context.Background(), tl, nextToComplete, testutil.At(0), testutil.At(60))
	require.NoError(t, err)

	require.Len(t, res.Cards, 1)
	x := res.Cards[0]
	assert.Equal(t, "(5) X", x.Name)
	assert.Equal(t, testutil.At(10), x.Start)
	assert.Equal(t, testutil.At(40), x.End)
	assert.Equal(t, 30*time.Minute, x.Duration)
	assert.Equal(t, 3, x.Points)

	assert.Equal(t, 30*time.Minute, res.Min)
	assert.Equal(t, 30*time.Minute, res.Max)
	assert.Equal(t, 30*time.Minute, res.Mean)
}

func TestControlChart_RangeCutsCheckpoints(t *testing.T) {
	tl := flowBoard(t)

	res, err := ControlChart(context.Background(), tl, nextToComplete, testutil.At(12), testutil.At(60))
	require.NoError(t, err)
	assert.Empty(t, res.Cards)
	assert.Zero(t, res.Mean)
}

func TestControlChart_SingleCheckpoint(t *testing.T) {
	tl := flowBoard(t)

	res, err := ControlChart(context.Background(), tl, [][]string{{"Complete"}}, testutil.At(0), testutil.At(60))
	require.NoError(t, err)
	require.Len(t, res.Cards, 2)
	for _, c := range res.Cards {
		assert.Zero(t, c.Duration)
	}
}

func TestControlChart_GroupMatchesAnyList(t *testing.T) {
	tl := flowBoard(t)

	res, err := ControlChart(context.Background(), tl, [][]string{{"Backlog"}, {"Next", "In Progress"}}, testutil.At(0), testutil.At(60))
	require.NoError(t, err)

	// Z never was in Backlog. X ends at its latest arrival in the second
	// group, In Progress.
	require.Len(t, res.Cards, 2)
	assert.Equal(t, 14*time.Minute, res.Cards[0].Duration)
	assert.Equal(t, 20*time.Minute, res.Cards[1].Duration)
	assert.Equal(t, 14*time.Minute, res.Min)
	assert.Equal(t, 20*time.Minute, res.Max)
}

func TestControlChart_UnknownCheckpoint(t *testing.T) {
	tl := flowBoard(t)

	_, err := ControlChart(context.Background(), tl, [][]string{{"Next"}, {"Shipped"}}, testutil.At(0), testutil.At(60))
	assert.True(t, query.IsValidationError(err))

	_, err = ControlChart(context.Background(), tl, nil, testutil.At(0), testutil.At(60))
	assert.Error(t, err)
}
