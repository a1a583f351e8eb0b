package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
)

// T0 is the reference instant test timelines are built around.
var T0 = time.Date(2016, 7, 12, 10, 0, 0, 0, time.UTC)

// At returns T0 plus the given number of minutes.
func At(minutes int) time.Time {
	return T0.Add(time.Duration(minutes) * time.Minute)
}

// Day returns T0 plus the given number of days.
func Day(days int) time.Time {
	return T0.AddDate(0, 0, days)
}

// Actions builds upstream card actions for one board. Action ids are
// assigned in build order ("a0001", "a0002", ...), so actions sharing a
// timestamp reconcile in the order they were built.
type Actions struct {
	Board string

	mu sync.Mutex
	n  int
}

// NewActions creates a builder for board.
func NewActions(board string) *Actions {
	return &Actions{Board: board}
}

func (a *Actions) next(typ string, at time.Time, data ir.RawEventData) ir.RawEvent {
	a.mu.Lock()
	a.n++
	id := fmt.Sprintf("a%04d", a.n)
	a.mu.Unlock()

	data.Board = &ir.RawRef{ID: a.Board}
	return ir.RawEvent{ID: id, Type: typ, Date: event.FormatTime(at), Data: data}
}

// Create is a createCard action placing card in list.
func (a *Actions) Create(at time.Time, card, name, list, listName string) ir.RawEvent {
	return a.next(event.TypeCreateCard, at, ir.RawEventData{
		Card: &ir.RawCard{ID: card, Name: name, IDList: list},
		List: &ir.RawRef{ID: list, Name: listName},
	})
}

// Copy is a copyCard action placing card in list.
func (a *Actions) Copy(at time.Time, card, name, list, listName string) ir.RawEvent {
	return a.next(event.TypeCopyCard, at, ir.RawEventData{
		Card: &ir.RawCard{ID: card, Name: name, IDList: list},
		List: &ir.RawRef{ID: list, Name: listName},
	})
}

// Move is an updateCard action moving card between lists.
func (a *Actions) Move(at time.Time, card, name, from, fromName, to, toName string) ir.RawEvent {
	return a.next(event.TypeUpdateCard, at, ir.RawEventData{
		Card:       &ir.RawCard{ID: card, Name: name, IDList: to},
		ListBefore: &ir.RawRef{ID: from, Name: fromName},
		ListAfter:  &ir.RawRef{ID: to, Name: toName},
		Old:        &ir.RawOld{IDList: &from},
	})
}

// Rename is an updateCard action changing only the card name. list is the
// card's list as the payload reports it.
func (a *Actions) Rename(at time.Time, card, oldName, newName, list string) ir.RawEvent {
	return a.next(event.TypeUpdateCard, at, ir.RawEventData{
		Card: &ir.RawCard{ID: card, Name: newName, IDList: list},
		Old:  &ir.RawOld{Name: &oldName},
	})
}

// Archive is an updateCard action closing card.
func (a *Actions) Archive(at time.Time, card, name, list string) ir.RawEvent {
	closed, was := true, false
	return a.next(event.TypeUpdateCard, at, ir.RawEventData{
		Card: &ir.RawCard{ID: card, Name: name, IDList: list, Closed: &closed},
		Old:  &ir.RawOld{Closed: &was},
	})
}

// Open is an updateCard action re-opening an archived card into list.
func (a *Actions) Open(at time.Time, card, name, list, listName string) ir.RawEvent {
	closed, was := false, true
	return a.next(event.TypeUpdateCard, at, ir.RawEventData{
		Card: &ir.RawCard{ID: card, Name: name, IDList: list, Closed: &closed},
		List: &ir.RawRef{ID: list, Name: listName},
		Old:  &ir.RawOld{Closed: &was},
	})
}

// Delete is a deleteCard action.
func (a *Actions) Delete(at time.Time, card string) ir.RawEvent {
	return a.next(event.TypeDeleteCard, at, ir.RawEventData{
		Card: &ir.RawCard{ID: card},
	})
}

// Typed is an action of an arbitrary type, for rejection tests.
func (a *Actions) Typed(typ string, at time.Time, card string) ir.RawEvent {
	return a.next(typ, at, ir.RawEventData{
		Card: &ir.RawCard{ID: card},
	})
}
