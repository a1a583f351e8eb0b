package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	called := false
	err := f.Render(map[string]int{"applied": 3}, func(w io.Writer) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called, "text renderer must not run for json")

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data["applied"])
}

func TestOutputFormatter_RenderText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	err := f.Render(nil, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "b1 refreshed")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "b1 refreshed\n", buf.String())

	err = f.Render(nil, func(w io.Writer) error { return errors.New("short write") })
	assert.EqualError(t, err, "short write")
}

func TestOutputFormatter_Error(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error("E106", "completed_list_pattern: invalid", []string{"profile.cue:3:1"}))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "E106", resp.Error.Code)
		assert.Equal(t, "completed_list_pattern: invalid", resp.Error.Message)
		assert.NotNil(t, resp.Error.Details)
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, f.Error("E101", "workflow: empty", "ignored"))
		assert.Equal(t, "Error [E101]: workflow: empty\n", buf.String())
	})

	t.Run("text verbose", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
		require.NoError(t, f.Error("E101", "workflow: empty", "profile.cue"))
		assert.Contains(t, buf.String(), "Details: profile.cue")
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		errOut  bool
	}{
		{"quiet", false, false},
		{"to writer", true, false},
		{"to err writer", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			f := &OutputFormatter{Format: "json", Writer: out, Verbose: tt.verbose}
			if tt.errOut {
				f.ErrWriter = errOut
			}

			f.VerboseLog("refreshing %s", "b1")

			switch {
			case !tt.verbose:
				assert.Empty(t, out.String())
			case tt.errOut:
				assert.Empty(t, out.String())
				assert.Equal(t, "refreshing b1\n", errOut.String())
			default:
				assert.Equal(t, "refreshing b1\n", out.String())
			}
		})
	}
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")

	wrapped := WrapExitError(ExitCommandError, "failed to open database", base)
	assert.Equal(t, "failed to open database: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))

	plain := NewExitError(ExitFailure, "1 board(s) deferred")
	assert.Equal(t, "1 board(s) deferred", plain.Error())
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("run: %w", plain)))

	assert.Equal(t, ExitFailure, GetExitCode(base))
}
