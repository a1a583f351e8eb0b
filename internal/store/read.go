package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/flowledger/internal/ir"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// BoardByExternalID returns the board with the given external id.
func (s *Store) BoardByExternalID(ctx context.Context, externalID string) (ir.Board, bool, error) {
	var b ir.Board
	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, name FROM boards WHERE external_id = ?`, externalID,
	).Scan(&b.ID, &b.ExternalID, &b.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Board{}, false, nil
	}
	if err != nil {
		return ir.Board{}, false, fmt.Errorf("read board %s: %w", externalID, err)
	}
	return b, true, nil
}

// Boards returns all boards ordered by id.
func (s *Store) Boards(ctx context.Context) ([]ir.Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, external_id, name FROM boards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer rows.Close()

	boards := []ir.Board{}
	for rows.Next() {
		var b ir.Board
		if err := rows.Scan(&b.ID, &b.ExternalID, &b.Name); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return boards, nil
}

// Lists returns the lists of a board ordered by id.
func (s *Store) Lists(ctx context.Context, boardID int64) ([]ir.List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, external_id, name FROM lists
		WHERE board_id = ?
		ORDER BY id ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	lists := []ir.List{}
	for rows.Next() {
		var l ir.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.ExternalID, &l.Name); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return lists, nil
}

// Cards returns the cards of a board ordered by id.
func (s *Store) Cards(ctx context.Context, boardID int64) ([]ir.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, external_id, name FROM cards
		WHERE board_id = ?
		ORDER BY id ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	cards := []ir.Card{}
	for rows.Next() {
		var c ir.Card
		if err := rows.Scan(&c.ID, &c.BoardID, &c.ExternalID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

// CardByExternalID returns the card with the given external id on a board.
func (s *Store) CardByExternalID(ctx context.Context, boardID int64, externalID string) (ir.Card, bool, error) {
	var c ir.Card
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, external_id, name FROM cards
		WHERE board_id = ? AND external_id = ?
	`, boardID, externalID).Scan(&c.ID, &c.BoardID, &c.ExternalID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Card{}, false, nil
	}
	if err != nil {
		return ir.Card{}, false, fmt.Errorf("read card %s: %w", externalID, err)
	}
	return c, true, nil
}

// Checkpoint returns the timestamp of the newest committed action on a
// board. ok is false for a board with no history yet.
func (s *Store) Checkpoint(ctx context.Context, boardID int64) (t time.Time, ok bool, err error) {
	var ms sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(at_ms) FROM card_actions WHERE board_id = ?`, boardID).Scan(&ms)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(ms.Int64), true, nil
}

// MaxSeq returns the highest sequence number in the store, or 0.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM card_actions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read max seq: %w", err)
	}
	return seq.Int64, nil
}

const actionColumns = `
	a.id, a.board_id, a.card_id, a.external_id, a.at_ms, a.seq, a.kind, a.action_type,
	a.list_id, a.points, a.points_known, a.card_name, a.is_archived, a.is_deleted,
	a.previous_id, a.payload_digest`

func scanAction(r rowScanner, extra ...any) (ir.CardAction, error) {
	var (
		a          ir.CardAction
		atMS       int64
		kind       string
		listID     sql.NullInt64
		previousID sql.NullInt64
		known      int
		archived   int
		deleted    int
	)
	dest := []any{
		&a.ID, &a.BoardID, &a.CardID, &a.ExternalID, &atMS, &a.Seq, &kind, &a.ActionType,
		&listID, &a.Size.Points, &known, &a.CardName, &archived, &deleted,
		&previousID, &a.PayloadDigest,
	}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return ir.CardAction{}, err
	}
	a.At = fromMillis(atMS)
	a.Kind = ir.Kind(kind)
	a.ListID = idPtr(listID)
	a.PreviousID = idPtr(previousID)
	a.Size.Known = known != 0
	a.Archived = archived != 0
	a.Deleted = deleted != 0
	return a, nil
}

// ActionByExternalID returns the committed action with the given external
// id on a board.
func (s *Store) ActionByExternalID(ctx context.Context, boardID int64, externalID string) (ir.CardAction, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+`
		FROM card_actions a
		WHERE a.board_id = ? AND a.external_id = ?
	`, boardID, externalID)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CardAction{}, false, nil
	}
	if err != nil {
		return ir.CardAction{}, false, fmt.Errorf("read action %s: %w", externalID, err)
	}
	return a, true, nil
}

// CardActions returns the history of one card in (at, seq) order.
func (s *Store) CardActions(ctx context.Context, cardID int64) ([]ir.CardAction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+`
		FROM card_actions a
		WHERE a.card_id = ?
		ORDER BY a.at_ms ASC, a.seq ASC, a.id ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("query card actions: %w", err)
	}
	defer rows.Close()

	actions := []ir.CardAction{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card actions: %w", err)
	}
	return actions, nil
}

// ActionPayload returns the verbatim upstream payload of an action.
func (s *Store) ActionPayload(ctx context.Context, actionID int64) ([]byte, error) {
	var (
		blob  []byte
		codec int
		size  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, payload_codec, payload_size FROM card_actions WHERE id = ?`, actionID,
	).Scan(&blob, &codec, &size)
	if err != nil {
		return nil, fmt.Errorf("read payload of action %d: %w", actionID, err)
	}
	data, err := decompressPayload(blob, Codec(codec), size)
	if err != nil {
		return nil, fmt.Errorf("read payload of action %d: %w", actionID, err)
	}
	return data, nil
}

// BoardAt returns, for every card of the board, its latest action at or
// before t, with the list name resolved. Cards with no action by t are
// absent. Archived and deleted cards are included; callers filter them
// for membership views.
func (s *Store) BoardAt(ctx context.Context, boardID int64, t time.Time) ([]ir.CardSnapshot, error) {
	return s.latestPerCard(ctx, boardID, toMillis(t))
}

// CardStates returns the latest action of every card on the board.
func (s *Store) CardStates(ctx context.Context, boardID int64) ([]ir.CardSnapshot, error) {
	return s.latestPerCard(ctx, boardID, int64(1)<<62)
}

func (s *Store) latestPerCard(ctx context.Context, boardID, atMS int64) ([]ir.CardSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT a.*, ROW_NUMBER() OVER (
				PARTITION BY a.card_id ORDER BY a.at_ms DESC, a.seq DESC, a.id DESC
			) AS rn
			FROM card_actions a
			WHERE a.board_id = ? AND a.at_ms <= ?
		)
		SELECT `+actionColumns+`, c.external_id, c.name, COALESCE(l.name, '')
		FROM ranked a
		JOIN cards c ON c.id = a.card_id
		LEFT JOIN lists l ON l.id = a.list_id
		WHERE a.rn = 1
		ORDER BY a.card_id ASC
	`, boardID, atMS)
	if err != nil {
		return nil, fmt.Errorf("query latest actions: %w", err)
	}
	defer rows.Close()

	snaps := []ir.CardSnapshot{}
	for rows.Next() {
		var snap ir.CardSnapshot
		a, err := scanAction(rows, &snap.Card.ExternalID, &snap.Card.Name, &snap.ListName)
		if err != nil {
			return nil, fmt.Errorf("scan latest action: %w", err)
		}
		snap.Action = a
		snap.Card.ID = a.CardID
		snap.Card.BoardID = a.BoardID
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest actions: %w", err)
	}
	return snaps, nil
}

// FirstActionInLists returns the earliest action of a card whose list is
// one of listIDs.
func (s *Store) FirstActionInLists(ctx context.Context, cardID int64, listIDs []int64) (ir.CardAction, bool, error) {
	if len(listIDs) == 0 {
		return ir.CardAction{}, false, nil
	}
	args := append([]any{cardID}, idArgs(listIDs)...)
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+`
		FROM card_actions a
		WHERE a.card_id = ? AND a.list_id IN (`+placeholders(len(listIDs))+`)
		ORDER BY a.at_ms ASC, a.seq ASC, a.id ASC
		LIMIT 1
	`, args...)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CardAction{}, false, nil
	}
	if err != nil {
		return ir.CardAction{}, false, fmt.Errorf("read first action in lists: %w", err)
	}
	return a, true, nil
}

const statColumns = `s.id, s.board_id, s.card_action_id, s.list_id, s.diff, s.cards_rt, s.points_rt, s.at_ms, s.seq`

func scanStat(r rowScanner, extra ...any) (ir.ListStat, error) {
	var (
		st   ir.ListStat
		atMS int64
	)
	dest := []any{&st.ID, &st.BoardID, &st.CardActionID, &st.ListID, &st.Diff, &st.Cards, &st.Points, &atMS, &st.Seq}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return ir.ListStat{}, err
	}
	st.At = fromMillis(atMS)
	return st, nil
}

func (s *Store) queryStats(ctx context.Context, query string, args ...any) ([]ir.ListStat, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query list stats: %w", err)
	}
	defer rows.Close()

	stats := []ir.ListStat{}
	for rows.Next() {
		st, err := scanStat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate list stats: %w", err)
	}
	return stats, nil
}

// ListStatAt returns the ledger entry of a list with the greatest
// (at, seq) whose time is at or before t. ok is false when the list has no
// entry by then, which callers read as zero cards and zero points.
func (s *Store) ListStatAt(ctx context.Context, listID int64, t time.Time) (ir.ListStat, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statColumns+`
		FROM list_stats s
		WHERE s.list_id = ? AND s.at_ms <= ?
		ORDER BY s.at_ms DESC, s.seq DESC, s.id DESC
		LIMIT 1
	`, listID, toMillis(t))
	st, err := scanStat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ListStat{}, false, nil
	}
	if err != nil {
		return ir.ListStat{}, false, fmt.Errorf("read list stat at: %w", err)
	}
	return st, true, nil
}

// ListStatsIn returns the ledger entries of a list with from <= at <= to,
// oldest first.
func (s *Store) ListStatsIn(ctx context.Context, listID int64, from, to time.Time) ([]ir.ListStat, error) {
	return s.queryStats(ctx, `SELECT `+statColumns+`
		FROM list_stats s
		WHERE s.list_id = ? AND s.at_ms >= ? AND s.at_ms <= ?
		ORDER BY s.at_ms ASC, s.seq ASC, s.id ASC
	`, listID, toMillis(from), toMillis(to))
}

// ListStats returns every ledger entry of a list, oldest first.
func (s *Store) ListStats(ctx context.Context, listID int64) ([]ir.ListStat, error) {
	return s.queryStats(ctx, `SELECT `+statColumns+`
		FROM list_stats s
		WHERE s.list_id = ?
		ORDER BY s.at_ms ASC, s.seq ASC, s.id ASC
	`, listID)
}

// LatestStats returns the newest ledger entry of every list on the board
// that has one, keyed by list id.
func (s *Store) LatestStats(ctx context.Context, boardID int64) (map[int64]ir.ListStat, error) {
	stats, err := s.queryStats(ctx, `
		WITH ranked AS (
			SELECT s.*, ROW_NUMBER() OVER (
				PARTITION BY s.list_id ORDER BY s.at_ms DESC, s.seq DESC, s.id DESC
			) AS rn
			FROM list_stats s
			WHERE s.board_id = ?
		)
		SELECT `+statColumns+` FROM ranked s WHERE s.rn = 1
		ORDER BY s.list_id ASC
	`, boardID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]ir.ListStat, len(stats))
	for _, st := range stats {
		out[st.ListID] = st
	}
	return out, nil
}

// Arrival is a +1 ledger entry joined with the card that arrived.
type Arrival struct {
	Stat     ir.ListStat
	CardID   int64
	CardName string
	Size     ir.Size
}

// ArrivalsIn returns the +1 ledger entries of the given lists with
// after < at <= through, oldest first.
func (s *Store) ArrivalsIn(ctx context.Context, listIDs []int64, after, through time.Time) ([]Arrival, error) {
	if len(listIDs) == 0 {
		return []Arrival{}, nil
	}
	args := append(idArgs(listIDs), toMillis(after), toMillis(through))
	rows, err := s.db.QueryContext(ctx, `SELECT `+statColumns+`, a.card_id, c.name, a.points, a.points_known
		FROM list_stats s
		JOIN card_actions a ON a.id = s.card_action_id
		JOIN cards c ON c.id = a.card_id
		WHERE s.list_id IN (`+placeholders(len(listIDs))+`)
		  AND s.diff = 1 AND s.at_ms > ? AND s.at_ms <= ?
		ORDER BY s.at_ms ASC, s.seq ASC, s.id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query arrivals: %w", err)
	}
	defer rows.Close()

	arrivals := []Arrival{}
	for rows.Next() {
		var (
			ar    Arrival
			known int
		)
		st, err := scanStat(rows, &ar.CardID, &ar.CardName, &ar.Size.Points, &known)
		if err != nil {
			return nil, fmt.Errorf("scan arrival: %w", err)
		}
		ar.Stat = st
		ar.Size.Known = known != 0
		arrivals = append(arrivals, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate arrivals: %w", err)
	}
	return arrivals, nil
}

const sprintSelect = `SELECT id, board_id, number, name, marker_card_id, start_ms, end_ms, completed_list_id FROM sprints `

func scanSprintRow(r rowScanner) (ir.Sprint, bool, error) {
	sp, err := scanSprint(r)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Sprint{}, false, nil
	}
	if err != nil {
		return ir.Sprint{}, false, err
	}
	return sp, true, nil
}

func scanSprint(r rowScanner) (ir.Sprint, error) {
	var (
		sp        ir.Sprint
		startMS   int64
		endMS     int64
		completed sql.NullInt64
	)
	if err := r.Scan(&sp.ID, &sp.BoardID, &sp.Number, &sp.Name, &sp.MarkerCardID, &startMS, &endMS, &completed); err != nil {
		return ir.Sprint{}, err
	}
	sp.Start = fromMillis(startMS)
	sp.End = fromMillis(endMS)
	sp.CompletedListID = idPtr(completed)
	return sp, nil
}

// Sprints returns the sprints of a board, most recent (highest number) first.
func (s *Store) Sprints(ctx context.Context, boardID int64) ([]ir.Sprint, error) {
	rows, err := s.db.QueryContext(ctx, sprintSelect+`
		WHERE board_id = ?
		ORDER BY number DESC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query sprints: %w", err)
	}
	defer rows.Close()

	sprints := []ir.Sprint{}
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sprints: %w", err)
	}
	return sprints, nil
}

// SprintByNumber returns the sprint with the given ordinal on a board.
func (s *Store) SprintByNumber(ctx context.Context, boardID int64, number int) (ir.Sprint, bool, error) {
	sp, ok, err := scanSprintRow(s.db.QueryRowContext(ctx, sprintSelect+`
		WHERE board_id = ? AND number = ?`, boardID, number))
	if err != nil {
		return ir.Sprint{}, false, fmt.Errorf("read sprint %d: %w", number, err)
	}
	return sp, ok, nil
}

// LastListActivity returns the time of the newest ledger entry of a list.
func (s *Store) LastListActivity(ctx context.Context, listID int64) (time.Time, bool, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(at_ms) FROM list_stats WHERE list_id = ?`, listID).Scan(&ms)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read list activity: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(ms.Int64), true, nil
}

// BoardMessages returns the messages of a board, oldest first.
func (s *Store) BoardMessages(ctx context.Context, boardID int64) ([]ir.BoardMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, level, text, created_ms FROM board_messages
		WHERE board_id = ?
		ORDER BY created_ms ASC, id ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query board messages: %w", err)
	}
	defer rows.Close()

	msgs := []ir.BoardMessage{}
	for rows.Next() {
		var (
			m  ir.BoardMessage
			ms int64
		)
		if err := rows.Scan(&m.ID, &m.BoardID, &m.Level, &m.Text, &ms); err != nil {
			return nil, fmt.Errorf("scan board message: %w", err)
		}
		m.CreatedAt = fromMillis(ms)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board messages: %w", err)
	}
	return msgs, nil
}
