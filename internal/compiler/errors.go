package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError is a profile problem. Pos points into the profile file
// when the problem can be located there.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if !e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s",
		e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
}

// fromCUE turns a CUE evaluation error into a *CompileError, preferring
// a position in the user's file over one in the embedded schema.
func fromCUE(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	for _, e := range errs {
		for _, p := range errors.Positions(e) {
			if p.Filename() != schemaFile {
				return &CompileError{Field: "cue", Message: e.Error(), Pos: p}
			}
		}
	}
	ce := &CompileError{Field: "cue", Message: errs[0].Error()}
	if positions := errors.Positions(errs[0]); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
