package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
	"github.com/roach88/flowledger/internal/store"
	"github.com/roach88/flowledger/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides what assertions read.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Timeline *query.Timeline
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLedger:
			err = assertLedger(actx, a)
		case AssertCard:
			err = assertCard(actx, a)
		case AssertSprint:
			err = assertSprint(actx, a)
		case AssertMessages:
			err = assertMessages(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func atOf(minutes *int) time.Time {
	if minutes == nil {
		return query.Forever
	}
	return testutil.At(*minutes)
}

// assertLedger sums the running totals of every list named a.List.
func assertLedger(actx *AssertionContext, a Assertion) error {
	lists := actx.Timeline.Named(a.List)
	if len(lists) == 0 {
		return &AssertionError{
			Type:     AssertLedger,
			Expected: fmt.Sprintf("a list named %q", a.List),
			Actual:   "no such list",
		}
	}
	at := atOf(a.At)

	for _, m := range []struct {
		metric ir.Metric
		want   *int
	}{
		{ir.MetricCards, a.Cards},
		{ir.MetricPoints, a.Points},
	} {
		if m.want == nil {
			continue
		}
		got, err := actx.Timeline.SumAt(actx.Ctx, lists, at, m.metric)
		if err != nil {
			return err
		}
		if got != *m.want {
			return &AssertionError{
				Type:     AssertLedger,
				Expected: fmt.Sprintf("%s %s = %d at %s", a.List, m.metric, *m.want, event.FormatTime(at)),
				Actual:   fmt.Sprintf("%d", got),
			}
		}
	}
	return nil
}

// assertCard checks which list holds a card.
func assertCard(actx *AssertionContext, a Assertion) error {
	at := atOf(a.At)
	snaps, err := actx.Timeline.BoardAt(actx.Ctx, at)
	if err != nil {
		return err
	}

	got := ""
	for _, snap := range snaps {
		if snap.Card.ExternalID == a.Card && snap.Action.ListID != nil {
			got = snap.ListName
		}
	}
	if got != *a.In {
		return &AssertionError{
			Type:     AssertCard,
			Expected: fmt.Sprintf("card %s in %q at %s", a.Card, *a.In, event.FormatTime(at)),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

// assertSprint checks a derived sprint's window and completed list.
func assertSprint(actx *AssertionContext, a Assertion) error {
	sprints, err := actx.Timeline.Sprints(actx.Ctx)
	if err != nil {
		return err
	}
	for _, sp := range sprints {
		if sp.Number != a.Number {
			continue
		}
		if a.Start != nil && !sp.Start.Equal(testutil.At(*a.Start)) {
			return &AssertionError{
				Type:     AssertSprint,
				Expected: fmt.Sprintf("sprint %d start %s", a.Number, event.FormatTime(testutil.At(*a.Start))),
				Actual:   event.FormatTime(sp.Start),
			}
		}
		if a.End != nil && !sp.End.Equal(testutil.At(*a.End)) {
			return &AssertionError{
				Type:     AssertSprint,
				Expected: fmt.Sprintf("sprint %d end %s", a.Number, event.FormatTime(testutil.At(*a.End))),
				Actual:   event.FormatTime(sp.End),
			}
		}
		if a.Completed != "" {
			got := ""
			if sp.CompletedListID != nil {
				for _, l := range actx.Timeline.Lists() {
					if l.ID == *sp.CompletedListID {
						got = l.Name
					}
				}
			}
			if got != a.Completed {
				return &AssertionError{
					Type:     AssertSprint,
					Expected: fmt.Sprintf("sprint %d completed in %q", a.Number, a.Completed),
					Actual:   fmt.Sprintf("%q", got),
				}
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertSprint,
		Expected: fmt.Sprintf("sprint %d", a.Number),
		Actual:   fmt.Sprintf("%d sprints, none numbered %d", len(sprints), a.Number),
	}
}

// assertMessages checks the board's user-visible messages.
func assertMessages(actx *AssertionContext, a Assertion) error {
	msgs, err := actx.Store.BoardMessages(actx.Ctx, actx.Timeline.Board().ID)
	if err != nil {
		return err
	}
	if a.Count != nil && len(msgs) != *a.Count {
		return &AssertionError{
			Type:     AssertMessages,
			Expected: fmt.Sprintf("%d messages", *a.Count),
			Actual:   fmt.Sprintf("%d messages", len(msgs)),
		}
	}
	if a.Contains != "" {
		for _, m := range msgs {
			if strings.Contains(m.Text, a.Contains) {
				return nil
			}
		}
		return &AssertionError{
			Type:     AssertMessages,
			Expected: fmt.Sprintf("a message containing %q", a.Contains),
			Actual:   fmt.Sprintf("%d messages without it", len(msgs)),
		}
	}
	return nil
}
