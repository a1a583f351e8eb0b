package engine

import (
	"fmt"
	"time"

	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
)

// CardState is the memoized state of one card between actions.
//
// ListID is the external id of the list the card is in, empty while the
// card is archived, deleted or not yet seen.
type CardState struct {
	Known    bool
	ListID   string
	Archived bool
	Deleted  bool
	Name     string
	Size     ir.Size

	LastActionID int64
	LastAt       time.Time
}

// TransitionKind names the row of the transition table an action took.
type TransitionKind string

const (
	TransitionCreate         TransitionKind = "create"
	TransitionBootstrap      TransitionKind = "bootstrap"
	TransitionArchive        TransitionKind = "archive"
	TransitionOpen           TransitionKind = "open"
	TransitionRename         TransitionKind = "rename"
	TransitionSilentMove     TransitionKind = "silent_move"
	TransitionMove           TransitionKind = "move"
	TransitionArchivedUpdate TransitionKind = "archived_update"
	TransitionRemove         TransitionKind = "remove"
	TransitionDrop           TransitionKind = "drop"
)

// Transition describes the effect of one action on a card.
type Transition struct {
	Kind TransitionKind
	Prev CardState
	Next CardState

	// Rename marks a pure rename that stays in the same list; it produces
	// a 0 ledger entry even when the size did not change.
	Rename bool

	// Drop is set when the action must not be committed. Err says why.
	Drop bool
	Err  error

	// Warning is a recoverable oddity worth surfacing, e.g. a rename whose
	// payload implies a list change nobody recorded.
	Warning string
}

// Apply feeds one normalized action into the state machine and returns the
// next state with the transition taken. s is not modified.
func (s CardState) Apply(ev event.Event) (CardState, Transition) {
	h := ev.Head()
	tr := Transition{Prev: s}

	if s.Known && h.At.Before(s.LastAt) {
		tr.Kind = TransitionDrop
		tr.Drop = true
		tr.Err = &ReconcileError{
			Code:    ErrCodeStale,
			Message: fmt.Sprintf("action at %s precedes card's last action at %s", h.At.Format(time.RFC3339Nano), s.LastAt.Format(time.RFC3339Nano)),
			Board:   h.BoardID,
			Action:  h.ExternalID,
		}
		tr.Next = s
		return s, tr
	}

	next := s
	next.Known = true
	if h.HasName {
		next.Name = h.CardName
		next.Size = h.Size
	}

	switch e := ev.(type) {
	case *event.Create, *event.CreatedElsewhere:
		target := event.TargetList(e)
		tr.Kind = TransitionCreate
		next.ListID = target.ID
		next.Archived = false
		next.Deleted = false

	case *event.MoveOrRename:
		applyUpdate(s, &next, &tr, e)

	case *event.RemovedFromBoard:
		if !s.Known || s.Deleted {
			tr.Kind = TransitionDrop
			tr.Drop = true
			tr.Err = &ReconcileError{
				Code:    ErrCodeInconsistent,
				Message: "card removed from board with no previous state",
				Board:   h.BoardID,
				Action:  h.ExternalID,
			}
			tr.Next = s
			return s, tr
		}
		tr.Kind = TransitionRemove
		next.ListID = ""
		next.Archived = false
		next.Deleted = true
	}

	tr.Next = next
	return next, tr
}

func applyUpdate(s CardState, next *CardState, tr *Transition, e *event.MoveOrRename) {
	drop := func(msg string) {
		tr.Kind = TransitionDrop
		tr.Drop = true
		tr.Err = &ReconcileError{Code: ErrCodeInconsistent, Message: msg, Board: e.BoardID, Action: e.ExternalID}
		*next = s
	}

	// No usable predecessor: the update stands in for the card's creation.
	if !s.Known || s.Deleted {
		switch {
		case e.Archiving:
			tr.Kind = TransitionArchive
			next.ListID = ""
			next.Archived = true
			next.Deleted = false
		case e.Target != nil:
			tr.Kind = TransitionBootstrap
			next.ListID = e.Target.ID
			next.Archived = false
			next.Deleted = false
		default:
			drop("update for unknown card names no list")
		}
		return
	}

	switch {
	case e.Archiving:
		tr.Kind = TransitionArchive
		next.ListID = ""
		next.Archived = true

	case e.Opening:
		if e.Target == nil {
			drop("card re-opened without a list")
			return
		}
		tr.Kind = TransitionOpen
		next.ListID = e.Target.ID
		next.Archived = false

	case s.Archived:
		// Moves and renames of an archived card are recorded but it stays
		// out of every list until it is opened.
		tr.Kind = TransitionArchivedUpdate
		next.ListID = ""

	case e.PureRename:
		if e.Target != nil && e.Target.ID != s.ListID {
			tr.Kind = TransitionSilentMove
			tr.Warning = fmt.Sprintf("silent list change: rename moved card %s from list %s to %s", e.CardID, s.ListID, e.Target.ID)
			next.ListID = e.Target.ID
			return
		}
		tr.Kind = TransitionRename
		tr.Rename = true

	default:
		tr.Kind = TransitionMove
		if e.Target != nil {
			next.ListID = e.Target.ID
		}
	}
}
