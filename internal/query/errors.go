package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBoardNotFound is returned when a board has never been refreshed.
var ErrBoardNotFound = errors.New("board not found")

// ValidationError reports list names that do not exist on the board.
type ValidationError struct {
	Board   string
	Missing []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	quoted := make([]string, len(e.Missing))
	for i, n := range e.Missing {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf("board %s has no list named %s", e.Board, strings.Join(quoted, ", "))
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
