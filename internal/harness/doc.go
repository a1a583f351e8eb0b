// Package harness runs reconciliation scenarios against a real engine.
//
// # Scenario Format
//
// Scenarios are YAML files. Times are minutes after a fixed origin
// (2016-07-12T10:00:00Z):
//
//	name: new_to_backlog
//	description: "A card moves from New to Backlog"
//	board: b1
//	now: 2880
//	profile: |
//	  in_progress: ["Doing"]
//	snapshot:
//	  - {card: c0, name: "(1) Old", list: l1, list_name: New}
//	dues:
//	  m1: 21600
//	refreshes:
//	  - steps:
//	      - {do: create, at: 0, card: c1, name: "(2) A", list: l1, list_name: New}
//	      - {do: move, at: 10, card: c1, name: "(2) A", from: l1, from_name: New, list: l2, list_name: Backlog}
//	    expect: {applied: 2}
//	assertions:
//	  - {type: ledger, list: Backlog, cards: 1, points: 2}
//	  - {type: card, card: c1, at: 5, in: New}
//	  - {type: sprint, number: 7, start: 1440, end: 21600}
//	  - {type: messages, count: 0}
//
// Each refresh adds its steps to the upstream history and reconciles once,
// so later refreshes exercise the incremental path.
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory store with a fixed run id and
// wall clock. Action ids are assigned in step order ("a0001", ...) unless
// a step names one. The rendered ledger is therefore stable and can be
// compared against a golden file with RunWithGolden.
package harness
