package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `name: two_creates
board: b1
board_name: Team
refreshes:
  - steps:
      - {do: create, at: 0, card: c1, name: "(2) A", list: l1, list_name: New}
      - {do: create, at: 5, card: c2, name: "(3) B", list: l1, list_name: New}
    expect: {applied: 2}
assertions:
  - {type: ledger, list: New, cards: 2, points: 5}
`

const scenarioGolden = `board b1 "Team"

list l1 "New"
  2016-07-12T10:00:00.000Z +1 cards=1 points=2
  2016-07-12T10:05:00.000Z +1 cards=2 points=5
`

func scenarioDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTemp(t, dir, "two_creates.yaml", scenarioYAML)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	return dir
}

func TestTestCommand_AssertionsOnly(t *testing.T) {
	dir := scenarioDir(t)

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ two_creates")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_Golden(t *testing.T) {
	dir := scenarioDir(t)
	golden := writeTemp(t, filepath.Join(dir, "golden"), "two_creates.golden", scenarioGolden)

	_, err := execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("stale"), 0644))
	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "ledger does not match golden file")

	_, err = execute(t, "test", dir, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, scenarioGolden, string(data))
}

func TestTestCommand_FailingAssertion(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "wrong.yaml", `name: wrong
refreshes:
  - steps:
      - {do: create, at: 0, card: c1, name: "(2) A", list: l1, list_name: New}
assertions:
  - {type: ledger, list: New, cards: 3}
`)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"E_TEST_FAILED"`)
	assert.Contains(t, out, `"failed": 1`)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t)
	writeTemp(t, dir, "broken.yaml", "name: [unterminated")

	out, err := execute(t, "test", dir, "--filter", "two_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
