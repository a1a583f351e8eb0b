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

func TestCumulativeFlow_Cards(t *testing.T) {
	tl := flowBoard(t)

	res, err := CumulativeFlow(context.Background(), tl, CumulativeRequest{
		Lists: []string{"Backlog", "Next", "Shipped"},
		From:  testutil.At(0),
		To:    testutil.At(20),
		Step:  10 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Backlog", "Next", "Shipped"}, res.Lists)
	assert.Equal(t, []string{"Shipped"}, res.Missing)
	assert.Equal(t, []FlowTick{
		{At: testutil.At(0), Values: map[string]int{"Backlog": 1, "Next": 0, "Shipped": 0}},
		{At: testutil.At(10), Values: map[string]int{"Backlog": 1, "Next": 1, "Shipped": 0}},
		{At: testutil.At(20), Values: map[string]int{"Backlog": 0, "Next": 1, "Shipped": 0}},
	}, res.Ticks)
}

func TestCumulativeFlow_Points(t *testing.T) {
	tl := flowBoard(t)

	res, err := CumulativeFlow(context.Background(), tl, CumulativeRequest{
		Lists:  []string{"Backlog", "Next"},
		From:   testutil.At(10),
		To:     testutil.At(10),
		Step:   time.Hour,
		Metric: ir.MetricPoints,
	})
	require.NoError(t, err)
	require.Len(t, res.Ticks, 1)
	assert.Equal(t, map[string]int{"Backlog": 2, "Next": 3}, res.Ticks[0].Values)
	assert.Nil(t, res.Missing)
}

func TestCumulativeFlow_BadRequest(t *testing.T) {
	tl := flowBoard(t)
	ctx := context.Background()

	_, err := CumulativeFlow(ctx, tl, CumulativeRequest{Lists: []string{"Next"}, From: testutil.At(0), To: testutil.At(1)})
	assert.ErrorContains(t, err, "step")

	_, err = CumulativeFlow(ctx, tl, CumulativeRequest{Lists: []string{"Next"}, From: testutil.At(1), To: testutil.At(0), Step: time.Minute})
	assert.Error(t, err)

	_, err = CumulativeFlow(ctx, tl, CumulativeRequest{Lists: []string{"Next"}, From: testutil.At(0), To: testutil.Day(365), Step: time.Minute})
	assert.ErrorContains(t, err, "limit")

	_, err = CumulativeFlow(ctx, tl, CumulativeRequest{Lists: []string{"Shipped"}, From: testutil.At(0), To: testutil.At(1), Step: time.Minute})
	assert.True(t, query.IsValidationError(err))
}
