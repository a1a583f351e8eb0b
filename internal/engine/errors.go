package engine

import (
	"errors"
	"fmt"
)

// ReconcileError represents a problem detected while reconciling a board.
//
// Only ErrCodeStorage and ErrCodeInvalidRequest abort a refresh. The other
// codes describe single actions that were skipped or derivations that were
// refused; they are logged and collected in the Report.
type ReconcileError struct {
	// Code identifies the error category.
	Code ReconcileErrorCode

	// Message is a human-readable description.
	Message string

	// Board is the external id of the board being reconciled.
	Board string

	// Action is the external id of the action involved, if any.
	Action string

	// Err is the underlying cause, if any.
	Err error
}

// ReconcileErrorCode categorizes reconcile errors.
type ReconcileErrorCode string

const (
	// ErrCodeStorage indicates a storage failure; the refresh stops and the
	// next one resumes after the last committed action.
	ErrCodeStorage ReconcileErrorCode = "STORAGE"

	// ErrCodeInvalidRequest indicates a malformed RefreshRequest.
	ErrCodeInvalidRequest ReconcileErrorCode = "INVALID_REQUEST"

	// ErrCodeStale indicates an action older than the card's last
	// committed action, or older than the board checkpoint.
	ErrCodeStale ReconcileErrorCode = "STALE_ACTION"

	// ErrCodeConflict indicates an attempt to re-derive an existing record
	// under a changed identity. The original record is preserved.
	ErrCodeConflict ReconcileErrorCode = "DERIVATION_CONFLICT"

	// ErrCodeInconsistent indicates an action that references a card with
	// no usable previous state and could not be recovered.
	ErrCodeInconsistent ReconcileErrorCode = "INCONSISTENT_STATE"

	// ErrCodeDeferred indicates an external lookup gap; the affected work
	// is retried on the next refresh.
	ErrCodeDeferred ReconcileErrorCode = "DEFERRED"
)

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Board != "" && e.Action != "" {
		msg = fmt.Sprintf("%s (board=%s, action=%s)", msg, e.Board, e.Action)
	} else if e.Board != "" {
		msg = fmt.Sprintf("%s (board=%s)", msg, e.Board)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ReconcileErrorCode) bool {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStaleError returns true if the error is a stale action error.
// Uses errors.As to handle wrapped errors.
func IsStaleError(err error) bool {
	return hasCode(err, ErrCodeStale)
}

// IsConflictError returns true if the error is a derivation conflict.
func IsConflictError(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsStorageError returns true if the error is a storage failure.
func IsStorageError(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

func storageError(board, action string, err error) *ReconcileError {
	return &ReconcileError{
		Code:    ErrCodeStorage,
		Message: "storage failure",
		Board:   board,
		Action:  action,
		Err:     err,
	}
}
