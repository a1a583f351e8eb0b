// Package engine reconciles a board's card action log into a timeline.
//
// A refresh is one synchronous batch pass over the actions fetched since
// the board's checkpoint:
//
//  1. Fetch raw actions (plus a snapshot on the first refresh)
//  2. Normalize and sort them by (time, external id)
//  3. Feed each card's actions through its CardState machine
//  4. Turn every transition into ledger deltas and running totals
//  5. Commit each action with its ledger entries as one atomic unit
//  6. Derive sprints from marker cards
//
// Refreshes of one board are serialized by BoardLocks; different boards
// reconcile independently.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every committed action is stamped with a strictly increasing seq from
// Clock.Next(). seq breaks ties between actions that share a timestamp.
//
// Idempotent Replay:
// Actions already committed are skipped by external id, so re-fetching an
// overlapping window never double counts. Ledger rows are unique per
// (action, list, direction).
//
// Memoized Card State:
// A card's current list, size and flags live in its CardState and are
// updated once per action; history is never rescanned during a refresh.
package engine
