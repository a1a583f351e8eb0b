package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/flowledger/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateProfileDefault(t *testing.T) {
	assert.Empty(t, ValidateProfile(ir.DefaultProfile()))
}

func TestValidateProfile(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ir.BoardProfile)
		field  string
		code   string
	}{
		{
			name:   "empty workflow",
			mutate: func(p *ir.BoardProfile) { p.Workflow = nil },
			field:  "workflow",
			code:   ErrWorkflowEmpty,
		},
		{
			name:   "empty checkpoint",
			mutate: func(p *ir.BoardProfile) { p.Workflow = [][]string{{"Next"}, {}} },
			field:  "workflow[1]",
			code:   ErrCheckpointEmpty,
		},
		{
			name:   "list in two checkpoints",
			mutate: func(p *ir.BoardProfile) { p.Workflow = [][]string{{"Next"}, {"Next "}} },
			field:  "workflow[1]",
			code:   ErrWorkflowSharedGroup,
		},
		{
			name:   "duplicate after normalization",
			mutate: func(p *ir.BoardProfile) { p.Completed = []string{"Café", "Café"} },
			field:  "completed[1]",
			code:   ErrDuplicateName,
		},
		{
			name:   "blank name",
			mutate: func(p *ir.BoardProfile) { p.Cumulative = []string{"New", " "} },
			field:  "cumulative[1]",
			code:   ErrEmptyName,
		},
		{
			name:   "empty commitment",
			mutate: func(p *ir.BoardProfile) { p.Commitment = nil },
			field:  "commitment",
			code:   ErrListSetEmpty,
		},
		{
			name:   "blank marker",
			mutate: func(p *ir.BoardProfile) { p.SprintMarker = "  " },
			field:  "sprint_marker",
			code:   ErrMarkerEmpty,
		},
		{
			name:   "bad pattern",
			mutate: func(p *ir.BoardProfile) { p.CompletedListPattern = "(" },
			field:  "completed_list_pattern",
			code:   ErrPatternInvalid,
		},
		{
			name:   "pattern without group",
			mutate: func(p *ir.BoardProfile) { p.CompletedListPattern = "done" },
			field:  "completed_list_pattern",
			code:   ErrPatternNoCapture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ir.DefaultProfile()
			tt.mutate(&p)

			errs := ValidateProfile(p)
			if assert.Len(t, errs, 1, "got %v", codes(errs)) {
				assert.Equal(t, tt.code, errs[0].Code)
				assert.Equal(t, tt.field, errs[0].Field)
			}
		})
	}
}

func TestValidateProfileCollectsAll(t *testing.T) {
	p := ir.DefaultProfile()
	p.Workflow = nil
	p.Active = nil
	p.SprintMarker = ""

	errs := ValidateProfile(p)
	assert.Equal(t, []string{ErrWorkflowEmpty, ErrListSetEmpty, ErrMarkerEmpty}, codes(errs))
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "workflow", Message: "at least one checkpoint is required", Code: ErrWorkflowEmpty}
	assert.Equal(t, "[E101] workflow: at least one checkpoint is required", e.Error())
}
