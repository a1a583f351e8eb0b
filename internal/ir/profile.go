package ir

// BoardProfile holds the caller-supplied list name configuration that the
// sprint deriver and the analytics read. Names are matched after NFC
// normalisation and whitespace trimming.
type BoardProfile struct {
	// Workflow is the ordered list of checkpoint groups for the control
	// chart. A card matches a checkpoint when it arrives in any list of
	// the group.
	Workflow [][]string `json:"workflow"`

	// Cumulative is the ordered list of lists shown in cumulative flow.
	Cumulative []string `json:"cumulative"`

	// Commitment lists define a sprint's committed points at its start.
	Commitment []string `json:"commitment"`

	// Active lists mark a sprint marker card as started.
	Active []string `json:"active"`

	// InProgress lists are the "not done" side of a burndown.
	InProgress []string `json:"in_progress"`

	// Completed lists are the "done" side of a burndown when a sprint has
	// no bound completed list.
	Completed []string `json:"completed"`

	// SprintMarker is the literal token preceding the sprint number in a
	// marker card's name, e.g. "Sprint" for "Sprint 7".
	SprintMarker string `json:"sprint_marker"`

	// CompletedListPattern is a regular expression with one capture group
	// for the sprint number, matched against list names.
	CompletedListPattern string `json:"completed_list_pattern"`
}

// DefaultProfile returns the profile used when no profile file is given.
func DefaultProfile() BoardProfile {
	return BoardProfile{
		Workflow:             [][]string{{"Next"}, {"Complete"}},
		Cumulative:           []string{"New", "Backlog", "Next", "In Progress", "Complete"},
		Commitment:           []string{"Next", "In Progress"},
		Active:               []string{"In Progress", "Next"},
		InProgress:           []string{"Next", "In Progress"},
		Completed:            []string{"Complete", "Accepted"},
		SprintMarker:         "Sprint",
		CompletedListPattern: `(?i)^sprint\s*(\d+)\s*\(?(?:complete|completed|done)\)?`,
	}
}
