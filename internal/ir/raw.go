package ir

import (
	"encoding/json"
	"time"
)

// RawEvent is one upstream card action as delivered by the event source.
//
// The field layout follows the upstream action JSON:
//
//	{"id": "...", "type": "updateCard", "date": "2016-07-12T11:32:14.696Z",
//	 "data": {"board": {...}, "card": {...}, "listBefore": {...}, "listAfter": {...},
//	          "old": {"idList": "..."}}}
//
// Payload keeps the verbatim bytes the event was decoded from so the
// store can retain the original for inspection.
type RawEvent struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Date string       `json:"date"`
	Data RawEventData `json:"data"`

	Payload json.RawMessage `json:"-"`
}

// RawEventData is the "data" object of an upstream action.
type RawEventData struct {
	Board       *RawRef  `json:"board,omitempty"`
	BoardSource *RawRef  `json:"boardSource,omitempty"`
	Card        *RawCard `json:"card,omitempty"`
	List        *RawRef  `json:"list,omitempty"`
	ListBefore  *RawRef  `json:"listBefore,omitempty"`
	ListAfter   *RawRef  `json:"listAfter,omitempty"`
	Old         *RawOld  `json:"old,omitempty"`
}

// RawRef references a board or list by id and (optionally) name.
type RawRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RawCard is the card as it looked right after the action.
type RawCard struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	IDList    string `json:"idList,omitempty"`
	IDShort   int    `json:"idShort,omitempty"`
	ShortLink string `json:"shortLink,omitempty"`
	Closed    *bool  `json:"closed,omitempty"`
}

// RawOld carries the previous values of fields an updateCard changed.
type RawOld struct {
	IDList *string `json:"idList,omitempty"`
	Closed *bool   `json:"closed,omitempty"`
	Name   *string `json:"name,omitempty"`
}

// UnmarshalJSON decodes the action and keeps a copy of the input bytes.
func (e *RawEvent) UnmarshalJSON(data []byte) error {
	type plain RawEvent
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = RawEvent(p)
	e.Payload = append(json.RawMessage(nil), data...)
	return nil
}

// Bytes returns the payload to store for the event. Events built in code
// (without going through UnmarshalJSON) are marshaled on demand.
func (e RawEvent) Bytes() ([]byte, error) {
	if len(e.Payload) > 0 {
		return e.Payload, nil
	}
	type plain RawEvent
	return json.Marshal(plain(e))
}

// RawItemState is a card as it exists on the board at a given instant.
// Snapshots are used to seed cards that existed before history began.
type RawItemState struct {
	CardID   string `json:"id"`
	Name     string `json:"name"`
	ListID   string `json:"idList"`
	ListName string `json:"listName"`
	Closed   bool   `json:"closed"`
}

// DueDates maps card external ids to their due timestamp.
type DueDates map[string]time.Time
