// Package query answers point-in-time questions about a reconciled board.
//
// Every lookup goes through one as-of rule: the state of a list at time T
// is its ledger entry with the greatest (timestamp, seq) at or before T,
// and the state of a card is its latest action at or before T. Nothing is
// recomputed by replaying history.
//
// A Timeline is a read-only view of one board. Timelines are safe for
// concurrent use; they are not isolated from a refresh of the same board
// running at the same time.
//
// List names supplied by callers are matched in normalized form (see
// ir.NormalizeName). A name that matches no list on the board is a caller
// error reported as *ValidationError.
package query
