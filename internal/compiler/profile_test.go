package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/ir"
)

func TestDefaultProfileMatchesBuiltin(t *testing.T) {
	p, err := DefaultProfile()
	require.NoError(t, err)
	assert.Equal(t, ir.DefaultProfile(), p)
}

func TestCompileProfileOverride(t *testing.T) {
	p, err := CompileProfileSource("profile.cue", []byte(`
		in_progress: ["Doing", "Review"]
		workflow: [["Ready"], ["Doing", "Review"], ["Done"]]
		sprint_marker: "Iteration"
	`))
	require.NoError(t, err)

	def := ir.DefaultProfile()
	assert.Equal(t, []string{"Doing", "Review"}, p.InProgress)
	assert.Equal(t, [][]string{{"Ready"}, {"Doing", "Review"}, {"Done"}}, p.Workflow)
	assert.Equal(t, "Iteration", p.SprintMarker)
	assert.Equal(t, def.Cumulative, p.Cumulative)
	assert.Equal(t, def.Completed, p.Completed)
	assert.Equal(t, def.CompletedListPattern, p.CompletedListPattern)
}

func TestCompileProfileUnknownField(t *testing.T) {
	_, err := CompileProfileSource("profile.cue", []byte(`
		in_progres: ["Doing"]
	`))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), "in_progres")
}

func TestCompileProfileEmptyWorkflow(t *testing.T) {
	_, err := CompileProfileSource("profile.cue", []byte(`workflow: []`))
	require.Error(t, err)

	var ce *CompileError
	assert.True(t, errors.As(err, &ce))
}

func TestCompileProfileBlankName(t *testing.T) {
	_, err := CompileProfileSource("profile.cue", []byte(`active: ["  "]`))
	require.Error(t, err)
}

func TestCompileProfileBadPattern(t *testing.T) {
	_, err := CompileProfileSource("profile.cue", []byte(`completed_list_pattern: "sprint (\\d+"`))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "completed_list_pattern", ce.Field)
	assert.Contains(t, ce.Message, ErrPatternInvalid)
}

func TestCompileProfilePatternWithoutGroup(t *testing.T) {
	_, err := CompileProfileSource("profile.cue", []byte(`completed_list_pattern: "(?i)^sprint done"`))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Message, ErrPatternNoCapture)
}

func TestCompileProfileSyntaxError(t *testing.T) {
	_, err := CompileProfileSource("profile.cue", []byte(`workflow: [[`))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "profile.cue", ce.Pos.Filename())
}

func TestCompileProfileValue(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`completed: ["Shipped"]`)
	require.NoError(t, v.Err())

	p, err := CompileProfile(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"Shipped"}, p.Completed)
}

func TestLoadProfile(t *testing.T) {
	t.Run("empty path is default", func(t *testing.T) {
		p, err := LoadProfile("")
		require.NoError(t, err)
		assert.Equal(t, ir.DefaultProfile(), p)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "board.cue")
		require.NoError(t, os.WriteFile(path, []byte(`commitment: ["Sprint Backlog"]`), 0o644))

		p, err := LoadProfile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Sprint Backlog"}, p.Commitment)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.cue"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read profile")
	})
}
