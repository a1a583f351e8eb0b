package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/flowledger/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrWorkflowEmpty       = "E101" // workflow needs at least one checkpoint
	ErrCheckpointEmpty     = "E102" // checkpoint group has no list
	ErrDuplicateName       = "E103" // list named twice in one set
	ErrEmptyName           = "E104" // blank list name
	ErrMarkerEmpty         = "E105" // sprint marker token is blank
	ErrPatternInvalid      = "E106" // completed list pattern does not compile
	ErrPatternNoCapture    = "E107" // completed list pattern lacks the number group
	ErrListSetEmpty        = "E108" // required list set is empty
	ErrWorkflowSharedGroup = "E109" // list in two checkpoints
)

// ValidationError represents a profile validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateProfile checks a profile. Returns all errors found (does not
// fail-fast).
//
// Only the shape of the profile is checked here. Whether the named lists
// exist is a property of a board and is checked when a metric is computed.
func ValidateProfile(p ir.BoardProfile) []ValidationError {
	var errs []ValidationError

	if len(p.Workflow) == 0 {
		errs = append(errs, ValidationError{
			Field:   "workflow",
			Message: "at least one checkpoint is required",
			Code:    ErrWorkflowEmpty,
		})
	}
	owner := map[string]int{}
	for i, group := range p.Workflow {
		field := fmt.Sprintf("workflow[%d]", i)
		if len(group) == 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "checkpoint must name at least one list",
				Code:    ErrCheckpointEmpty,
			})
		}
		errs = append(errs, validateNames(field, group)...)
		for _, n := range group {
			key := ir.NormalizeName(n)
			if j, ok := owner[key]; ok && j != i {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("list %q is already checkpoint %d", n, j),
					Code:    ErrWorkflowSharedGroup,
				})
			}
			owner[key] = i
		}
	}

	errs = append(errs, validateNames("cumulative", p.Cumulative)...)
	for _, set := range []struct {
		field string
		names []string
	}{
		{"commitment", p.Commitment},
		{"active", p.Active},
		{"in_progress", p.InProgress},
		{"completed", p.Completed},
	} {
		if len(set.names) == 0 {
			errs = append(errs, ValidationError{
				Field:   set.field,
				Message: "at least one list is required",
				Code:    ErrListSetEmpty,
			})
		}
		errs = append(errs, validateNames(set.field, set.names)...)
	}

	if strings.TrimSpace(p.SprintMarker) == "" {
		errs = append(errs, ValidationError{
			Field:   "sprint_marker",
			Message: "sprint marker token is required",
			Code:    ErrMarkerEmpty,
		})
	}

	re, err := regexp.Compile(p.CompletedListPattern)
	switch {
	case err != nil:
		errs = append(errs, ValidationError{
			Field:   "completed_list_pattern",
			Message: err.Error(),
			Code:    ErrPatternInvalid,
		})
	case re.NumSubexp() < 1:
		errs = append(errs, ValidationError{
			Field:   "completed_list_pattern",
			Message: "pattern needs a capture group for the sprint number",
			Code:    ErrPatternNoCapture,
		})
	}

	return errs
}

// validateNames reports blank and repeated names in one list set.
func validateNames(field string, names []string) []ValidationError {
	var errs []ValidationError
	seen := map[string]bool{}
	for i, n := range names {
		key := ir.NormalizeName(n)
		if key == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "list name is blank",
				Code:    ErrEmptyName,
			})
			continue
		}
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("duplicate list name: %q", n),
				Code:    ErrDuplicateName,
			})
		}
		seen[key] = true
	}
	return errs
}
