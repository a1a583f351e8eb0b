package event

import (
	"errors"
	"fmt"
)

// Reason classifies why an action was rejected.
type Reason string

const (
	ReasonUnknownKind   Reason = "unknown_kind"
	ReasonBoardMismatch Reason = "board_mismatch"
	ReasonNoTargetList  Reason = "no_target_list"
	ReasonMissingCard   Reason = "missing_card"
	ReasonBadDate       Reason = "bad_date"
	ReasonMalformed     Reason = "malformed"
)

// ErrUnknownKind is wrapped by rejections of unsupported action types.
var ErrUnknownKind = errors.New("unknown action type")

// RejectError reports an action that Normalize skipped.
type RejectError struct {
	Reason     Reason
	ActionID   string
	ActionType string
	Detail     string
	Err        error
}

func (e *RejectError) Error() string {
	msg := fmt.Sprintf("reject action %s (%s): %s", e.ActionID, e.ActionType, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is a *RejectError.
func IsRejected(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// RejectReason returns the reason of a *RejectError in err's chain, or ""
// when err is not a rejection.
func RejectReason(err error) Reason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
