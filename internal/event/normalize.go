package event

import (
	"fmt"
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// Upstream action types the normalizer understands.
const (
	TypeCreateCard          = "createCard"
	TypeCopyCard            = "copyCard"
	TypeConvertFromCheck    = "convertToCardFromCheckItem"
	TypeMoveCardToBoard     = "moveCardToBoard"
	TypeUpdateCard          = "updateCard"
	TypeDeleteCard          = "deleteCard"
	TypeMoveCardFromBoard   = "moveCardFromBoard"
	TypeSyntheticCreateCard = "syntheticCreate"
)

// Types lists every action type an event source should fetch.
var Types = []string{
	TypeCreateCard,
	TypeUpdateCard,
	TypeMoveCardToBoard,
	TypeMoveCardFromBoard,
	TypeDeleteCard,
	TypeConvertFromCheck,
	TypeCopyCard,
}

var kindByType = map[string]ir.Kind{
	TypeCreateCard:          ir.KindCreate,
	TypeSyntheticCreateCard: ir.KindCreate,
	TypeCopyCard:            ir.KindCreatedElsewhere,
	TypeConvertFromCheck:    ir.KindCreatedElsewhere,
	TypeMoveCardToBoard:     ir.KindCreatedElsewhere,
	TypeUpdateCard:          ir.KindMoveOrRename,
	TypeDeleteCard:          ir.KindRemovedFromBoard,
	TypeMoveCardFromBoard:   ir.KindRemovedFromBoard,
}

// ClassifyType maps an upstream action type to its kind.
func ClassifyType(actionType string) (ir.Kind, bool) {
	k, ok := kindByType[actionType]
	return k, ok
}

// Normalize validates raw and converts it to an Event for the board with
// external id boardID. Actions that cannot be used are returned as
// *RejectError; Normalize never fails for any other reason.
//
// An action without data.board is accepted: sources that fetch per board
// do not always repeat it.
func Normalize(raw ir.RawEvent, boardID string) (Event, error) {
	reject := func(reason Reason, detail string, err error) error {
		return &RejectError{Reason: reason, ActionID: raw.ID, ActionType: raw.Type, Detail: detail, Err: err}
	}

	kind, ok := ClassifyType(raw.Type)
	if !ok {
		return nil, reject(ReasonUnknownKind, "", ErrUnknownKind)
	}

	d := raw.Data
	if d.Board != nil && d.Board.ID != boardID {
		return nil, reject(ReasonBoardMismatch, fmt.Sprintf("action board %s, reconciling %s", d.Board.ID, boardID), nil)
	}
	if d.Card == nil || d.Card.ID == "" {
		return nil, reject(ReasonMissingCard, "", nil)
	}

	at, err := ParseTime(raw.Date)
	if err != nil {
		return nil, reject(ReasonBadDate, raw.Date, err)
	}

	payload, err := raw.Bytes()
	if err != nil {
		return nil, reject(ReasonMalformed, "payload", err)
	}

	h := Header{
		ExternalID: raw.ID,
		ActionType: raw.Type,
		At:         at,
		BoardID:    boardID,
		CardID:     d.Card.ID,
		CardName:   d.Card.Name,
		HasName:    d.Card.Name != "",
		Payload:    payload,
	}
	if h.HasName {
		h.Size = ParseSize(h.CardName)
	}

	switch kind {
	case ir.KindCreate, ir.KindCreatedElsewhere:
		target := createTarget(d)
		if target == nil {
			return nil, reject(ReasonNoTargetList, "", nil)
		}
		if kind == ir.KindCreate {
			return &Create{Header: h, List: *target}, nil
		}
		return &CreatedElsewhere{Header: h, List: *target}, nil

	case ir.KindMoveOrRename:
		return normalizeUpdate(h, d), nil

	default:
		return &RemovedFromBoard{Header: h}, nil
	}
}

func createTarget(d ir.RawEventData) *ListRef {
	if d.List != nil && d.List.ID != "" {
		return &ListRef{ID: d.List.ID, Name: d.List.Name}
	}
	if d.Card.IDList != "" {
		return &ListRef{ID: d.Card.IDList}
	}
	return nil
}

func normalizeUpdate(h Header, d ir.RawEventData) *MoveOrRename {
	ev := &MoveOrRename{Header: h}

	switch {
	case d.ListAfter != nil && d.ListAfter.ID != "":
		ev.Target = &ListRef{ID: d.ListAfter.ID, Name: d.ListAfter.Name}
	case d.List != nil && d.List.ID != "":
		ev.Target = &ListRef{ID: d.List.ID, Name: d.List.Name}
	case d.Card.IDList != "":
		ev.Target = &ListRef{ID: d.Card.IDList}
	}

	old := d.Old
	if old == nil {
		old = &ir.RawOld{}
	}

	switch {
	case d.ListBefore != nil && d.ListBefore.ID != "":
		ev.Before = &ListRef{ID: d.ListBefore.ID, Name: d.ListBefore.Name}
	case old.IDList != nil:
		ev.Before = &ListRef{ID: *old.IDList}
	}
	ev.Moved = ev.Before != nil || d.ListAfter != nil

	closed := d.Card.Closed != nil && *d.Card.Closed
	if old.Closed != nil {
		ev.Archiving = closed && !*old.Closed
		ev.Opening = *old.Closed && !closed
	}

	ev.PureRename = old.Name != nil && !ev.Moved && old.Closed == nil
	return ev
}

// ParseTime parses an upstream timestamp ("2016-07-12T11:32:14.696Z").
// The result is in UTC and truncated to milliseconds, the precision the
// store keeps.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

// FormatTime renders t the way upstream timestamps are written.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
