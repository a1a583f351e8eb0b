package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Reports, len(s.Refreshes))
		})
	}
}

func TestRunUsesScenarioNameAsRunID(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/ledger_walkthrough.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.Equal(t, "ledger_walkthrough", result.Reports[0].RunID)
}

func TestRunReportsMismatches(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_expectations
refreshes:
  - steps:
      - {do: create, at: 0, card: c1, name: "(2) A", list: l1, list_name: New}
    expect: {applied: 5}
assertions:
  - {type: ledger, list: New, points: 7}
  - {type: ledger, list: Missing, cards: 1}
  - {type: card, card: c1, in: Backlog}
  - {type: sprint, number: 1}
  - {type: messages, count: 2}
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "applied = 1, want 5")
	assert.Contains(t, result.Errors[1], "New points = 7")
	assert.Contains(t, result.Errors[2], `a list named "Missing"`)
	assert.Contains(t, result.Errors[3], `card c1 in "Backlog"`)
	assert.Contains(t, result.Errors[4], "sprint 1")
	assert.Contains(t, result.Errors[5], "2 messages")
}

func TestRunRejectsBadProfile(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_profile
profile: |
  workflow: []
refreshes: [{}]
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile profile")
}

func TestAssertionErrorFormat(t *testing.T) {
	err := &AssertionError{Type: AssertLedger, Expected: "New cards = 1", Actual: "0"}
	assert.Equal(t, "Assertion failed: ledger\n  Expected: New cards = 1\n  Actual: 0", err.Error())
}
