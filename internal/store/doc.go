// Package store provides SQLite-backed durable storage for reconciled board
// timelines.
//
// The store holds:
//   - Boards, lists and cards, interned by external id
//   - Card actions: the append-only per-card history, with the raw payload
//   - List stats: the occupancy ledger, one row per (action, list, direction)
//   - Sprints and board messages derived after each refresh
//
// # Ordering
//
// Every timeline read orders by (at_ms, seq, id). seq is a logical,
// strictly increasing sequence assigned at commit time; it breaks ties
// between actions that share a timestamp, so reads are deterministic.
//
// "As of T" means the row with the greatest (at_ms, seq) whose at_ms <= T.
//
// # Idempotency
//
//   - card_actions: UNIQUE(board_id, external_id)
//   - list_stats: UNIQUE(card_action_id, list_id, diff)
//   - sprints: UNIQUE(board_id, number)
//   - board_messages: UNIQUE(board_id, text)
//
// Inserts use ON CONFLICT DO NOTHING; a conflict is reported back to the
// caller, never raised.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The schema lives in the migrations subpackage.
package store
