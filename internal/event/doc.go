// Package event turns raw upstream card actions into a closed set of
// normalized events.
//
// Normalize decides the kind of every action exactly once, at ingestion.
// Everything downstream switches on the concrete type:
//
//	switch ev := e.(type) {
//	case *event.Create:
//	case *event.CreatedElsewhere:
//	case *event.MoveOrRename:
//	case *event.RemovedFromBoard:
//	}
//
// Event is a sealed interface; only types in this package implement it.
//
// Actions that cannot be normalized come back as *RejectError. A rejection
// is never fatal to a batch: callers log it and move on.
package event
