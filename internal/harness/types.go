package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every assertion held against the reloaded bank.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Entities is the number of results in the reloaded bank.
	Entities int `json:"entities"`

	// Records is the total number of ledger records across all results.
	Records int `json:"records"`

	// Snapshot holds the canonical JSON snapshot of the reloaded bank.
	// Golden comparisons run against these bytes.
	Snapshot []byte `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
