package event

import (
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// SyntheticCreate builds the zero-th action for a card that already existed
// when the board's history begins. The action id is derived from the card
// id so a repeated bootstrap produces the same id.
func SyntheticCreate(state ir.RawItemState, boardID string, at time.Time) ir.RawEvent {
	closed := state.Closed
	return ir.RawEvent{
		ID:   "snapshot-" + state.CardID,
		Type: TypeSyntheticCreateCard,
		Date: FormatTime(at),
		Data: ir.RawEventData{
			Board: &ir.RawRef{ID: boardID},
			Card: &ir.RawCard{
				ID:     state.CardID,
				Name:   state.Name,
				IDList: state.ListID,
				Closed: &closed,
			},
			List: &ir.RawRef{ID: state.ListID, Name: state.ListName},
		},
	}
}
