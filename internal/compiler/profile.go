package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/roach88/flowledger/internal/ir"
)

//go:embed schema.cue
var schemaSource string

const schemaFile = "flowledger/schema.cue"

// CompileProfile unifies v with the profile schema, fills in defaults and
// decodes the result. The decoded profile is then checked by
// ValidateProfile; the first problem is returned as a *CompileError.
//
// v must come from the same cue.Context as the schema is compiled in,
// so callers normally go through CompileProfileSource or LoadProfile.
func CompileProfile(v cue.Value) (ir.BoardProfile, error) {
	if err := v.Err(); err != nil {
		return ir.BoardProfile{}, fromCUE(err)
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename(schemaFile)).
		LookupPath(cue.ParsePath("#Profile"))
	if err := schema.Err(); err != nil {
		return ir.BoardProfile{}, fmt.Errorf("profile schema: %w", err)
	}

	u := schema.Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return ir.BoardProfile{}, fromCUE(err)
	}

	var p ir.BoardProfile
	if err := u.Decode(&p); err != nil {
		return ir.BoardProfile{}, fromCUE(err)
	}

	if errs := ValidateProfile(p); len(errs) > 0 {
		e := errs[0]
		return ir.BoardProfile{}, &CompileError{
			Field:   e.Field,
			Message: fmt.Sprintf("[%s] %s", e.Code, e.Message),
			Pos:     fieldPos(u, e.Field),
		}
	}
	return p, nil
}

// CompileProfileSource compiles a profile from CUE source text. filename
// is used in error positions.
func CompileProfileSource(filename string, src []byte) (ir.BoardProfile, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileProfile(v)
}

// LoadProfile reads and compiles a profile file. An empty path yields the
// default profile.
func LoadProfile(path string) (ir.BoardProfile, error) {
	if path == "" {
		return DefaultProfile()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return ir.BoardProfile{}, fmt.Errorf("read profile: %w", err)
	}
	return CompileProfileSource(path, src)
}

// DefaultProfile is the profile of an empty profile file.
func DefaultProfile() (ir.BoardProfile, error) {
	return CompileProfileSource("default.cue", nil)
}

// fieldPos returns the source position of the top-level field a validation
// error points at, when the user's file set it.
func fieldPos(v cue.Value, field string) token.Pos {
	name := field
	if i := strings.IndexAny(field, ".["); i >= 0 {
		name = field[:i]
	}
	pos := v.LookupPath(cue.ParsePath(name)).Pos()
	if pos.Filename() == schemaFile {
		return token.NoPos
	}
	return pos
}
