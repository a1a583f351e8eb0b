package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/ir"
)

const actions = `[
  {"id": "a3", "type": "updateCard", "date": "2016-07-12T10:20:00.000Z",
   "data": {"board": {"id": "b1"}, "card": {"id": "c1", "name": "(2) A", "idList": "l2"},
            "listBefore": {"id": "l1", "name": "New"}, "listAfter": {"id": "l2", "name": "Backlog"},
            "old": {"idList": "l1"}}},
  {"id": "x1", "type": "commentCard", "date": "2016-07-12T10:15:00.000Z",
   "data": {"board": {"id": "b1"}, "card": {"id": "c1"}}},
  {"id": "o1", "type": "createCard", "date": "2016-07-12T10:12:00.000Z",
   "data": {"board": {"id": "other"}, "card": {"id": "c9", "name": "elsewhere"}, "list": {"id": "l9"}}},
  {"id": "a2", "type": "createCard", "date": "2016-07-12T10:10:00.000Z",
   "data": {"card": {"id": "c2", "name": "B"}, "list": {"id": "l1", "name": "New"}}},
  {"id": "a1", "type": "createCard", "date": "2016-07-12T10:00:00.000Z",
   "data": {"board": {"id": "b1"}, "card": {"id": "c1", "name": "(2) A"}, "list": {"id": "l1", "name": "New"}}}
]`

const boardExport = `{
  "actions": [
    {"id": "a1", "type": "createCard", "date": "2016-07-12T10:00:00.000Z",
     "data": {"board": {"id": "b1"}, "card": {"id": "c1", "name": "(2) A"}, "list": {"id": "l1", "name": "New"}}}
  ],
  "lists": [{"id": "l1", "name": "New"}, {"id": "l2", "name": "Next"}],
  "cards": [
    {"id": "c1", "name": "(2) A", "idList": "l1", "closed": false, "due": null},
    {"id": "m1", "name": "Sprint 4", "idList": "l2", "closed": false, "due": "2016-07-20T12:00:00.000Z"},
    {"id": "m2", "name": "Sprint 5", "idList": "l2", "closed": true, "due": "soon"}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func ids(events []ir.RawEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestFile_FetchEvents(t *testing.T) {
	src := NewFile(writeFile(t, "actions.json", actions))
	ctx := context.Background()

	events, err := src.FetchEvents(ctx, "b1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids(events))
	assert.NotEmpty(t, events[0].Payload)

	since := time.Date(2016, 7, 12, 10, 10, 0, 0, time.UTC)
	events, err = src.FetchEvents(ctx, "b1", &since)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a3"}, ids(events))
}

func TestFile_Export(t *testing.T) {
	src := NewFile(writeFile(t, "board.json", boardExport))
	ctx := context.Background()

	events, err := src.FetchEvents(ctx, "b1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(events))

	states, err := src.FetchSnapshot(ctx, "b1", time.Now())
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, ir.RawItemState{CardID: "m1", Name: "Sprint 4", ListID: "l2", ListName: "Next"}, states[1])
	assert.True(t, states[2].Closed)

	dues, err := src.DueDates(ctx, []string{"c1", "m1", "m2", "zz"})
	require.NoError(t, err)
	assert.Equal(t, ir.DueDates{"m1": time.Date(2016, 7, 20, 12, 0, 0, 0, time.UTC)}, dues)
}

func TestFile_SeparateCardsAndDues(t *testing.T) {
	cards := writeFile(t, "cards.json", `[{"id": "c5", "name": "E", "idList": "l1", "listName": "New", "closed": false}]`)
	dues := writeFile(t, "dues.json", `{"m1": "2016-07-20T12:00:00Z", "m2": ""}`)
	src := NewFile(writeFile(t, "actions.json", actions), WithCards(cards), WithDueDates(dues))
	ctx := context.Background()

	states, err := src.FetchSnapshot(ctx, "b1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []ir.RawItemState{{CardID: "c5", Name: "E", ListID: "l1", ListName: "New"}}, states)

	got, err := src.DueDates(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, ir.DueDates{"m1": time.Date(2016, 7, 20, 12, 0, 0, 0, time.UTC)}, got)
}

func TestFile_Compressed(t *testing.T) {
	dir := t.TempDir()

	zpath := filepath.Join(dir, "actions.json.zst")
	zf, err := os.Create(zpath)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(zf)
	require.NoError(t, err)
	_, err = zw.Write([]byte(actions))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	lpath := filepath.Join(dir, "actions.json.lz4")
	lf, err := os.Create(lpath)
	require.NoError(t, err)
	lw := lz4.NewWriter(lf)
	_, err = lw.Write([]byte(actions))
	require.NoError(t, err)
	require.NoError(t, lw.Close())
	require.NoError(t, lf.Close())

	for _, path := range []string{zpath, lpath} {
		events, err := NewFile(path).FetchEvents(context.Background(), "b1", nil)
		require.NoError(t, err, path)
		assert.Equal(t, []string{"a1", "a2", "a3"}, ids(events), path)
	}
}

func TestFile_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewFile(filepath.Join(t.TempDir(), "missing.json")).FetchEvents(ctx, "b1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.json")

	_, err = NewFile(writeFile(t, "bad.json", `[{"id": `)).FetchEvents(ctx, "b1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")

	_, err = NewFile(writeFile(t, "a.json", actions), WithDueDates(writeFile(t, "d.json", `[]`))).DueDates(ctx, []string{"m1"})
	assert.Error(t, err)
}
