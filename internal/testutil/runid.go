package testutil

// FixedRunID is an engine.RunIDGenerator that always returns one id, so
// reports and logs of test refreshes are reproducible.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator returning id, or "test-run" when id
// is empty.
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunID) Generate() string {
	return g.id
}
