package harness

import "github.com/roach88/flowledger/internal/engine"

// Result collects what a scenario run produced and every expectation it
// failed. A scenario with no failures passes.
type Result struct {
	Pass    bool             `json:"pass"`
	Reports []*engine.Report `json:"reports"`
	Errors  []string         `json:"errors,omitempty"`

	// Ledger is the RenderLedger output after the last refresh.
	Ledger string `json:"ledger"`
}

func NewResult() *Result {
	return &Result{Pass: true, Reports: []*engine.Report{}, Errors: []string{}}
}

// AddError records a failed expectation.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}
