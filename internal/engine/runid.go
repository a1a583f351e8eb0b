package engine

import "github.com/google/uuid"

// RunIDGenerator names a refresh run. The id is attached to every log
// record of the run and returned in its Report.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered run ids, so the runs of a board
// sort by start time in logs.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
