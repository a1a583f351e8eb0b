package ir

import "time"

// Kind classifies a normalized card event.
type Kind string

const (
	// KindCreate is a card created directly on the board.
	KindCreate Kind = "create"

	// KindMoveOrRename is any update of an existing card: list move,
	// archive, re-open or rename.
	KindMoveOrRename Kind = "move_or_rename"

	// KindRemovedFromBoard is a card deleted or moved to another board.
	KindRemovedFromBoard Kind = "removed_from_board"

	// KindCreatedElsewhere is a card that appeared on this board from
	// somewhere else: copied, converted from a checklist item or moved in.
	KindCreatedElsewhere Kind = "created_elsewhere"
)

// IsCreateLike reports whether the kind places a card on the board.
func (k Kind) IsCreateLike() bool {
	return k == KindCreate || k == KindCreatedElsewhere
}

// Size is the story point annotation parsed from a card name.
// Known is false when the name carries no "(N)" prefix; such cards count
// as zero points in aggregates but are distinct from an explicit "(0)".
type Size struct {
	Points int  `json:"points"`
	Known  bool `json:"known"`
}

// Board is the unit of reconciliation.
type Board struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// List is a named container on a board. Identity is the external id;
// the name may change over time.
type List struct {
	ID         int64  `json:"id"`
	BoardID    int64  `json:"board_id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// Card is the tracked item. Name is the latest known name.
type Card struct {
	ID         int64  `json:"id"`
	BoardID    int64  `json:"board_id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// CardAction is one committed event in a card's history.
//
// ListID is nil while the card is archived or deleted. PreviousID links to
// the immediately preceding action of the same card; the chain follows
// (At, Seq) order.
type CardAction struct {
	ID            int64     `json:"id"`
	BoardID       int64     `json:"board_id"`
	CardID        int64     `json:"card_id"`
	ExternalID    string    `json:"external_id"`
	At            time.Time `json:"at"`
	Seq           int64     `json:"seq"`
	Kind          Kind      `json:"kind"`
	ActionType    string    `json:"action_type"`
	ListID        *int64    `json:"list_id,omitempty"`
	Size          Size      `json:"size"`
	CardName      string    `json:"card_name"`
	Archived      bool      `json:"archived"`
	Deleted       bool      `json:"deleted"`
	PreviousID    *int64    `json:"previous_id,omitempty"`
	PayloadDigest string    `json:"payload_digest"`
}

// ListStat is one occupancy ledger entry: the running totals of a list
// right after applying Diff for the card action.
//
// Diff is -1 (card left), +1 (card arrived) or 0 (card stayed, size changed).
type ListStat struct {
	ID           int64     `json:"id"`
	BoardID      int64     `json:"board_id"`
	CardActionID int64     `json:"card_action_id"`
	ListID       int64     `json:"list_id"`
	Diff         int       `json:"diff"`
	Cards        int       `json:"cards"`
	Points       int       `json:"points"`
	At           time.Time `json:"at"`
	Seq          int64     `json:"seq"`
}

// Sprint is a derived time window [Start, End).
type Sprint struct {
	ID              int64     `json:"id"`
	BoardID         int64     `json:"board_id"`
	Number          int       `json:"number"`
	Name            string    `json:"name"`
	MarkerCardID    int64     `json:"marker_card_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	CompletedListID *int64    `json:"completed_list_id,omitempty"`
}

// Message levels for BoardMessage.
const (
	MessageWarning = "warning"
	MessageInfo    = "info"
)

// BoardMessage is a user-visible note about a board produced during
// reconciliation, e.g. a duplicate sprint marker.
type BoardMessage struct {
	ID        int64     `json:"id"`
	BoardID   int64     `json:"board_id"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// CardSnapshot is the state of one card at a point in time: its latest
// action at or before that time.
type CardSnapshot struct {
	Card     Card       `json:"card"`
	Action   CardAction `json:"action"`
	ListName string     `json:"list_name,omitempty"`
}

// Metric selects which running total an aggregate reads.
type Metric string

const (
	MetricCards  Metric = "cards"
	MetricPoints Metric = "points"
)

// Value returns the running total of s selected by m.
func (m Metric) Value(s ListStat) int {
	if m == MetricPoints {
		return s.Points
	}
	return s.Cards
}
