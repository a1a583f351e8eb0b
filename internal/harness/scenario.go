package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines one reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Board is the upstream board id. Defaults to "b1".
	Board string `yaml:"board,omitempty"`

	// BoardName is the display name stored for the board.
	BoardName string `yaml:"board_name,omitempty"`

	// Now is the wall clock in minutes. Defaults to two days.
	Now *int `yaml:"now,omitempty"`

	// Profile is CUE source for the board profile. Empty uses the default.
	Profile string `yaml:"profile,omitempty"`

	// Snapshot is the board state FetchSnapshot returns.
	Snapshot []SnapshotCard `yaml:"snapshot,omitempty"`

	// Dues maps card ids to due dates in minutes.
	Dues map[string]int `yaml:"dues,omitempty"`

	// Refreshes run in order against one engine.
	Refreshes []Refresh `yaml:"refreshes"`

	// Assertions are checked after the last refresh.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SnapshotCard is one card of the upstream board state.
type SnapshotCard struct {
	Card     string `yaml:"card"`
	Name     string `yaml:"name"`
	List     string `yaml:"list"`
	ListName string `yaml:"list_name,omitempty"`
	Closed   bool   `yaml:"closed,omitempty"`
}

// Refresh adds steps to the upstream history and reconciles.
type Refresh struct {
	Steps []Step `yaml:"steps,omitempty"`

	// FetchError makes the source fail this refresh.
	FetchError bool `yaml:"fetch_error,omitempty"`

	// Replay fetches the whole history instead of honouring the checkpoint.
	Replay bool `yaml:"replay,omitempty"`

	Expect *ReportExpect `yaml:"expect,omitempty"`
}

// Step is one upstream action.
type Step struct {
	// Do is create, copy, move, rename, archive, open, delete, or any raw
	// upstream action type.
	Do string `yaml:"do"`

	At       int    `yaml:"at"`
	ID       string `yaml:"id,omitempty"`
	Card     string `yaml:"card"`
	Name     string `yaml:"name,omitempty"`
	OldName  string `yaml:"old_name,omitempty"`
	List     string `yaml:"list,omitempty"`
	ListName string `yaml:"list_name,omitempty"`
	From     string `yaml:"from,omitempty"`
	FromName string `yaml:"from_name,omitempty"`
}

// ReportExpect is a subset match on a refresh report.
type ReportExpect struct {
	Fetched   *int  `yaml:"fetched,omitempty"`
	Applied   *int  `yaml:"applied,omitempty"`
	Skipped   *int  `yaml:"skipped,omitempty"`
	Rejected  *int  `yaml:"rejected,omitempty"`
	Dropped   *int  `yaml:"dropped,omitempty"`
	Conflicts *int  `yaml:"conflicts,omitempty"`
	Snapshot  *int  `yaml:"snapshot,omitempty"`
	Deferred  *bool `yaml:"deferred,omitempty"`
}

// Assertion validates the final timeline.
type Assertion struct {
	// Type specifies the assertion type:
	// - "ledger": running totals of the lists named List at At
	// - "card": the list named In holds Card at At ("" means off the board)
	// - "sprint": sprint Number has the given window and completed list
	// - "messages": board message count and text
	Type string `yaml:"type"`

	// At is minutes after the origin. Nil means the end of time.
	At *int `yaml:"at,omitempty"`

	List   string `yaml:"list,omitempty"`
	Cards  *int   `yaml:"cards,omitempty"`
	Points *int   `yaml:"points,omitempty"`

	Card string  `yaml:"card,omitempty"`
	In   *string `yaml:"in,omitempty"`

	Number    int    `yaml:"number,omitempty"`
	Start     *int   `yaml:"start,omitempty"`
	End       *int   `yaml:"end,omitempty"`
	Completed string `yaml:"completed,omitempty"`

	Count    *int   `yaml:"count,omitempty"`
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertLedger   = "ledger"
	AssertCard     = "card"
	AssertSprint   = "sprint"
	AssertMessages = "messages"
)

// Step verbs.
const (
	StepCreate  = "create"
	StepCopy    = "copy"
	StepMove    = "move"
	StepRename  = "rename"
	StepArchive = "archive"
	StepOpen    = "open"
	StepDelete  = "delete"
)

var stepVerbs = []string{StepCreate, StepCopy, StepMove, StepRename, StepArchive, StepOpen, StepDelete}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Board == "" {
		scenario.Board = "b1"
	}
	if scenario.BoardName == "" {
		scenario.BoardName = scenario.Board
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Refreshes) == 0 {
		return fmt.Errorf("at least one refresh is required")
	}
	for i, r := range s.Refreshes {
		for j, st := range r.Steps {
			if err := validateStep(st); err != nil {
				return fmt.Errorf("refreshes[%d].steps[%d]: %w", i, j, err)
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(st Step) error {
	if st.Do == "" {
		return fmt.Errorf("do is required")
	}
	if st.Card == "" {
		return fmt.Errorf("card is required")
	}
	if !slices.Contains(stepVerbs, st.Do) {
		if !isUpstreamName(st.Do) {
			return fmt.Errorf("unknown step %q", st.Do)
		}
		return nil
	}
	switch st.Do {
	case StepCreate, StepCopy, StepOpen:
		if st.List == "" {
			return fmt.Errorf("%s needs list", st.Do)
		}
	case StepMove:
		if st.List == "" || st.From == "" {
			return fmt.Errorf("move needs from and list")
		}
	case StepRename:
		if st.OldName == "" {
			return fmt.Errorf("rename needs old_name")
		}
	}
	return nil
}

// isUpstreamName reports whether s looks like an upstream action type
// (lower camel case with at least one capital), such as "commentCard".
func isUpstreamName(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func validateAssertion(a Assertion, index int) error {
	switch a.Type {
	case AssertLedger:
		if a.List == "" {
			return fmt.Errorf("assertions[%d]: list is required for ledger", index)
		}
		if a.Cards == nil && a.Points == nil {
			return fmt.Errorf("assertions[%d]: cards or points is required for ledger", index)
		}
	case AssertCard:
		if a.Card == "" || a.In == nil {
			return fmt.Errorf("assertions[%d]: card and in are required for card", index)
		}
	case AssertSprint:
		if a.Number <= 0 {
			return fmt.Errorf("assertions[%d]: number is required for sprint", index)
		}
	case AssertMessages:
		if a.Count == nil && a.Contains == "" {
			return fmt.Errorf("assertions[%d]: count or contains is required for messages", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
