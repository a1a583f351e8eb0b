package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowledger/internal/store"
)

func TestGoldenLedgers(t *testing.T) {
	for _, name := range []string{
		"ledger_walkthrough",
		"incremental_refresh",
		"snapshot_bootstrap",
	} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestRenderLedgerUnknownBoard(t *testing.T) {
	st, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	defer st.Close()

	_, err = RenderLedger(context.Background(), st, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "board nope not found")
}

func TestRenderLedgerIsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/sprint_from_marker.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Ledger, second.Ledger)
	assert.Contains(t, first.Ledger, "\nsprints\n  #7 \"Sprint 7\" 2016-07-13T10:00:00.000Z..2016-07-27T10:00:00.000Z completed=-\n")
	assert.Contains(t, first.Ledger, "\nmessages\n  warning: ")
}
