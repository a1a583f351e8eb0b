package event

import (
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// Event is a normalized card action.
//
// This is a sealed interface - only types in this package implement it.
type Event interface {
	Kind() ir.Kind
	Head() *Header
	eventNode() // Marker method - seals interface to this package
}

// Header carries the fields every normalized event has.
type Header struct {
	ExternalID string    // upstream action id
	ActionType string    // upstream type, e.g. "updateCard"
	At         time.Time // action timestamp, UTC
	BoardID    string    // external id of the board the action belongs to
	CardID     string    // external id of the card

	// CardName is the card's display name right after the action.
	// HasName is false when the payload did not carry a name; the previous
	// name and size stay in effect in that case.
	CardName string
	HasName  bool
	Size     ir.Size

	// Payload is the verbatim upstream JSON.
	Payload []byte
}

// ListRef identifies a list by external id. Name is empty when the payload
// only carried the id.
type ListRef struct {
	ID   string
	Name string
}

// Create is a card created directly on the board.
type Create struct {
	Header
	List ListRef
}

// CreatedElsewhere is a card that arrived on the board by copy, checklist
// conversion or a move from another board.
type CreatedElsewhere struct {
	Header
	List ListRef
}

// MoveOrRename is any updateCard action.
type MoveOrRename struct {
	Header

	// Target is the list the card is in after the action: listAfter, else
	// list, else card.idList. Nil when the payload names no list.
	Target *ListRef

	// Before is the list the payload says the card left. Nil unless the
	// action is a move.
	Before *ListRef

	// Moved is true when the payload records a list change.
	Moved bool

	Archiving  bool // closed went false -> true
	Opening    bool // closed went true -> false
	PureRename bool // only the name changed
}

// RemovedFromBoard is a card deleted or moved to another board.
type RemovedFromBoard struct {
	Header
}

func (*Create) Kind() ir.Kind           { return ir.KindCreate }
func (*CreatedElsewhere) Kind() ir.Kind { return ir.KindCreatedElsewhere }
func (*MoveOrRename) Kind() ir.Kind     { return ir.KindMoveOrRename }
func (*RemovedFromBoard) Kind() ir.Kind { return ir.KindRemovedFromBoard }

func (e *Create) Head() *Header           { return &e.Header }
func (e *CreatedElsewhere) Head() *Header { return &e.Header }
func (e *MoveOrRename) Head() *Header     { return &e.Header }
func (e *RemovedFromBoard) Head() *Header { return &e.Header }

func (*Create) eventNode()           {}
func (*CreatedElsewhere) eventNode() {}
func (*MoveOrRename) eventNode()     {}
func (*RemovedFromBoard) eventNode() {}

// TargetList returns the list a create-like event places the card in.
// It returns nil for kinds that do not carry a single target.
func TargetList(e Event) *ListRef {
	switch ev := e.(type) {
	case *Create:
		return &ev.List
	case *CreatedElsewhere:
		return &ev.List
	case *MoveOrRename:
		return ev.Target
	default:
		return nil
	}
}
