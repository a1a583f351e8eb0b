package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// EnsureBoard returns the board with the given external id, creating it if
// needed. A non-empty name replaces the stored one.
func (s *Store) EnsureBoard(ctx context.Context, externalID, name string) (ir.Board, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (external_id, name) VALUES (?, ?)
		ON CONFLICT(external_id) DO UPDATE SET name = excluded.name
		WHERE excluded.name != ''
	`, externalID, name)
	if err != nil {
		return ir.Board{}, fmt.Errorf("ensure board: %w", err)
	}

	b, ok, err := s.BoardByExternalID(ctx, externalID)
	if err != nil {
		return ir.Board{}, err
	}
	if !ok {
		return ir.Board{}, fmt.Errorf("ensure board: %s vanished after insert", externalID)
	}
	return b, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureList interns a list by (board, external id). A non-empty name that
// differs from the stored one is a rename and is applied in place.
func (s *Store) EnsureList(ctx context.Context, boardID int64, externalID, name string) (ir.List, error) {
	return ensureList(ctx, s.db, boardID, externalID, name)
}

// EnsureCard interns a card by (board, external id). A non-empty name
// replaces the stored one.
func (s *Store) EnsureCard(ctx context.Context, boardID int64, externalID, name string) (ir.Card, error) {
	return ensureCard(ctx, s.db, boardID, externalID, name)
}

func ensureList(ctx context.Context, q execer, boardID int64, externalID, name string) (ir.List, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO lists (board_id, external_id, name) VALUES (?, ?, ?)
		ON CONFLICT(board_id, external_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE lists.name END
		RETURNING id, board_id, external_id, name
	`, boardID, externalID, name)

	var l ir.List
	if err := row.Scan(&l.ID, &l.BoardID, &l.ExternalID, &l.Name); err != nil {
		return ir.List{}, fmt.Errorf("ensure list %s: %w", externalID, err)
	}
	return l, nil
}

func ensureCard(ctx context.Context, q execer, boardID int64, externalID, name string) (ir.Card, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO cards (board_id, external_id, name) VALUES (?, ?, ?)
		ON CONFLICT(board_id, external_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE cards.name END
		RETURNING id, board_id, external_id, name
	`, boardID, externalID, name)

	var c ir.Card
	if err := row.Scan(&c.ID, &c.BoardID, &c.ExternalID, &c.Name); err != nil {
		return ir.Card{}, fmt.Errorf("ensure card %s: %w", externalID, err)
	}
	return c, nil
}

// Commit is one card action together with the ledger entries it produces.
// It is written as a single atomic unit.
type Commit struct {
	Action  ir.CardAction
	Payload []byte
	Stats   []ir.ListStat
}

// CommitResult reports what CommitAction actually wrote.
type CommitResult struct {
	ActionID int64

	// Inserted is false when an action with the same external id was
	// already committed for the board; nothing else is written then.
	Inserted bool

	// StatConflicts counts ledger entries that already existed under the
	// same (action, list, direction) and were left untouched.
	StatConflicts int
}

// Unit is the transaction of one card action. Lists and cards interned
// through it, renames included, become visible only together with the
// action when Commit succeeds.
//
// The store allows a single connection, so no other Store method may be
// called while a Unit is open.
type Unit struct {
	tx    *sql.Tx
	codec Codec
}

// Begin opens a Unit. Call Rollback when done; after Commit it is a no-op.
func (s *Store) Begin(ctx context.Context) (*Unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit: %w", err)
	}
	return &Unit{tx: tx, codec: s.codec}, nil
}

// Rollback discards everything written through u.
func (u *Unit) Rollback() error {
	err := u.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// EnsureList is Store.EnsureList inside the unit.
func (u *Unit) EnsureList(ctx context.Context, boardID int64, externalID, name string) (ir.List, error) {
	return ensureList(ctx, u.tx, boardID, externalID, name)
}

// EnsureCard is Store.EnsureCard inside the unit.
func (u *Unit) EnsureCard(ctx context.Context, boardID int64, externalID, name string) (ir.Card, error) {
	return ensureCard(ctx, u.tx, boardID, externalID, name)
}

// CommitAction writes a card action, its ledger entries and the card's
// latest name in one transaction. Either all of it is visible afterwards
// or none of it is.
//
// Uses ON CONFLICT DO NOTHING for idempotency: re-committing an action that
// is already stored is a no-op reported through CommitResult.
func (s *Store) CommitAction(ctx context.Context, c Commit) (CommitResult, error) {
	u, err := s.Begin(ctx)
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit action %s: %w", c.Action.ExternalID, err)
	}
	defer u.Rollback()
	return u.Commit(ctx, c)
}

// Commit writes the action and its ledger entries and commits the unit.
// When the action is already stored nothing is committed and the unit's
// other writes are discarded.
func (u *Unit) Commit(ctx context.Context, c Commit) (CommitResult, error) {
	a := c.Action
	tx := u.tx

	blob, codec, err := compressPayload(c.Payload, u.codec)
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit action %s: %w", a.ExternalID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO card_actions
		(board_id, card_id, external_id, at_ms, seq, kind, action_type, list_id,
		 points, points_known, card_name, is_archived, is_deleted, previous_id,
		 payload_digest, payload_codec, payload_size, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(board_id, external_id) DO NOTHING
	`,
		a.BoardID, a.CardID, a.ExternalID, toMillis(a.At), a.Seq, string(a.Kind), a.ActionType,
		nullID(a.ListID), a.Size.Points, boolToInt(a.Size.Known), a.CardName,
		boolToInt(a.Archived), boolToInt(a.Deleted), nullID(a.PreviousID),
		a.PayloadDigest, int(codec), len(c.Payload), blob,
	)
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit action %s: insert: %w", a.ExternalID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit action %s: rows affected: %w", a.ExternalID, err)
	}
	if rows == 0 {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM card_actions WHERE board_id = ? AND external_id = ?`,
			a.BoardID, a.ExternalID).Scan(&id)
		if err != nil {
			return CommitResult{}, fmt.Errorf("commit action %s: read existing: %w", a.ExternalID, err)
		}
		if err := u.Rollback(); err != nil {
			return CommitResult{}, fmt.Errorf("commit action %s: rollback: %w", a.ExternalID, err)
		}
		return CommitResult{ActionID: id, Inserted: false}, nil
	}

	actionID, err := res.LastInsertId()
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit action %s: last insert id: %w", a.ExternalID, err)
	}

	result := CommitResult{ActionID: actionID, Inserted: true}
	for _, st := range c.Stats {
		sres, err := tx.ExecContext(ctx, `
			INSERT INTO list_stats
			(board_id, card_action_id, list_id, diff, cards_rt, points_rt, at_ms, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(card_action_id, list_id, diff) DO NOTHING
		`, a.BoardID, actionID, st.ListID, st.Diff, st.Cards, st.Points, toMillis(a.At), a.Seq)
		if err != nil {
			return CommitResult{}, fmt.Errorf("commit action %s: insert stat for list %d: %w", a.ExternalID, st.ListID, err)
		}
		n, err := sres.RowsAffected()
		if err != nil {
			return CommitResult{}, fmt.Errorf("commit action %s: stat rows affected: %w", a.ExternalID, err)
		}
		if n == 0 {
			result.StatConflicts++
		}
	}

	if a.CardName != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET name = ? WHERE id = ?`, a.CardName, a.CardID); err != nil {
			return CommitResult{}, fmt.Errorf("commit action %s: update card name: %w", a.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, fmt.Errorf("commit action %s: commit: %w", a.ExternalID, err)
	}
	return result, nil
}

// ErrSprintMarkerConflict is returned by UpsertSprint when the sprint
// number is already owned by a different marker card.
var ErrSprintMarkerConflict = errors.New("sprint number owned by another marker")

// UpsertSprint creates the sprint keyed by (board, number) or updates its
// name and window when the same marker card owns it. A sprint owned by a
// different marker is left untouched and ErrSprintMarkerConflict is
// returned with the stored sprint.
//
// The completed-list binding is never changed here; see BindCompletedList.
func (s *Store) UpsertSprint(ctx context.Context, sp ir.Sprint) (ir.Sprint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Sprint{}, fmt.Errorf("upsert sprint %d: begin tx: %w", sp.Number, err)
	}
	defer tx.Rollback()

	existing, found, err := scanSprintRow(tx.QueryRowContext(ctx, sprintSelect+`
		WHERE board_id = ? AND number = ?`, sp.BoardID, sp.Number))
	if err != nil {
		return ir.Sprint{}, fmt.Errorf("upsert sprint %d: %w", sp.Number, err)
	}

	if found && existing.MarkerCardID != sp.MarkerCardID {
		return existing, ErrSprintMarkerConflict
	}

	if found {
		_, err = tx.ExecContext(ctx, `
			UPDATE sprints SET name = ?, start_ms = ?, end_ms = ? WHERE id = ?
		`, sp.Name, toMillis(sp.Start), toMillis(sp.End), existing.ID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sprints (board_id, number, name, marker_card_id, start_ms, end_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sp.BoardID, sp.Number, sp.Name, sp.MarkerCardID, toMillis(sp.Start), toMillis(sp.End))
	}
	if err != nil {
		return ir.Sprint{}, fmt.Errorf("upsert sprint %d: write: %w", sp.Number, err)
	}

	stored, _, err := scanSprintRow(tx.QueryRowContext(ctx, sprintSelect+`
		WHERE board_id = ? AND number = ?`, sp.BoardID, sp.Number))
	if err != nil {
		return ir.Sprint{}, fmt.Errorf("upsert sprint %d: read back: %w", sp.Number, err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Sprint{}, fmt.Errorf("upsert sprint %d: commit: %w", sp.Number, err)
	}
	return stored, nil
}

// BindCompletedList links a sprint to the list holding its completed work.
// A sprint that is already bound keeps its binding; the return value
// reports whether the binding was written.
func (s *Store) BindCompletedList(ctx context.Context, sprintID, listID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sprints SET completed_list_id = ?
		WHERE id = ? AND completed_list_id IS NULL
	`, listID, sprintID)
	if err != nil {
		return false, fmt.Errorf("bind completed list: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bind completed list: %w", err)
	}
	return n > 0, nil
}

// AddBoardMessage records a user-visible message for a board. Messages are
// deduplicated by text; the return value reports whether it was new.
func (s *Store) AddBoardMessage(ctx context.Context, boardID int64, level, text string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO board_messages (board_id, level, text, created_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(board_id, text) DO NOTHING
	`, boardID, level, text, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("add board message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add board message: %w", err)
	}
	return n > 0, nil
}
