package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// CumulativeRequest selects a cumulative flow series.
type CumulativeRequest struct {
	Lists  []string
	From   time.Time
	To     time.Time
	Step   time.Duration
	Metric ir.Metric
}

// FlowTick is the running total of every requested list at one instant.
type FlowTick struct {
	At     time.Time      `json:"at"`
	Values map[string]int `json:"values"`
}

// CumulativeFlowResult is a cumulative flow series.
type CumulativeFlowResult struct {
	Lists []string   `json:"lists"`
	Ticks []FlowTick `json:"ticks"`

	// Missing names requested lists the board does not have.
	Missing []string `json:"missing,omitempty"`
}

// CumulativeFlow samples the running totals of each requested list at
// From, From+Step, ... up to and including To. Names absent from the
// board read as 0 at every tick and are reported in Missing; at least one
// must exist.
func CumulativeFlow(ctx context.Context, tl Timeline, req CumulativeRequest) (CumulativeFlowResult, error) {
	if req.Step <= 0 {
		return CumulativeFlowResult{}, errors.New("cumulative flow: step must be positive")
	}
	if req.To.Before(req.From) {
		return CumulativeFlowResult{}, fmt.Errorf("cumulative flow: range ends %s before it starts %s", req.To, req.From)
	}
	if n := req.To.Sub(req.From)/req.Step + 1; n > maxTicks {
		return CumulativeFlowResult{}, fmt.Errorf("cumulative flow: %d ticks exceeds the limit of %d", n, maxTicks)
	}
	metric := req.Metric
	if metric == "" {
		metric = ir.MetricCards
	}

	resolved, err := tl.ResolveAny(req.Lists)
	if err != nil {
		return CumulativeFlowResult{}, err
	}

	res := CumulativeFlowResult{Lists: req.Lists, Ticks: []FlowTick{}, Missing: unresolved(req.Lists, resolved)}
	for at := req.From; !at.After(req.To); at = at.Add(req.Step) {
		tick := FlowTick{At: at, Values: make(map[string]int, len(req.Lists))}
		for _, name := range req.Lists {
			v, err := tl.SumAt(ctx, resolved[name], at, metric)
			if err != nil {
				return CumulativeFlowResult{}, err
			}
			tick.Values[name] = v
		}
		res.Ticks = append(res.Ticks, tick)
	}
	return res, nil
}
