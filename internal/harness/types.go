package harness

import (
	"github.com/roach88/sirad/internal/research"
	"github.com/roach88/sirad/internal/resolve"
	"github.com/roach88/sirad/internal/separate"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Reports are the ingest reports in scenario order.
	Reports []separate.LoadReport `json:"reports"`

	// Identity maps each loaded row with identifying columns to its
	// assignment.
	Identity map[RowRef]resolve.Assignment `json:"-"`

	// Groups is the number of distinct sirad_ids.
	Groups int `json:"groups"`

	// Research describes each research table by name.
	Research map[string]research.TableResult `json:"research"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Errors:   []string{},
		Identity: make(map[RowRef]resolve.Assignment),
		Research: make(map[string]research.TableResult),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Report returns the ingest report of a dataset.
func (r *Result) Report(dataset string) (separate.LoadReport, bool) {
	for _, rep := range r.Reports {
		if rep.Dataset == dataset {
			return rep, true
		}
	}
	return separate.LoadReport{}, false
}
