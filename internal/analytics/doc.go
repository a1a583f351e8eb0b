// Package analytics computes flow metrics from a reconciled timeline.
//
// All functions are read-only and safe to call concurrently. They take a
// Timeline (satisfied by *query.Timeline) and return plain data: time
// series keyed by list name, completed card lists, sprint points. Missing
// aggregates read as 0; list names that do not exist on the board are
// reported as *query.ValidationError.
//
// Metrics:
//   - CumulativeFlow: per-list running totals at uniform ticks
//   - ControlChart: lead time of cards that passed every workflow checkpoint
//   - Burndown: daily done and remaining points of a sprint
//   - SprintMetrics and Velocity: committed and done points per sprint
//   - ListHistory: every change of one list's totals
package analytics
