package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/sirad/internal/resolve"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertSameID:
		return assertSameID(result, a)
	case AssertDistinctID:
		return assertDistinctID(result, a)
	case AssertKeyKind:
		return assertKeyKind(result, a)
	case AssertDropped:
		return assertDropped(result, a)
	case AssertGroups:
		if result.Groups != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d groups", a.Count),
				Actual:   fmt.Sprintf("%d groups", result.Groups),
			}
		}
		return nil
	case AssertResearchRows:
		tr, ok := result.Research[a.Dataset]
		if !ok {
			return &AssertionError{Type: a.Type, Expected: "research table " + a.Dataset, Actual: "not built"}
		}
		if tr.Rows != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Dataset),
				Actual:   fmt.Sprintf("%d rows", tr.Rows),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// lookup finds the assignments of the referenced rows.
func lookup(result *Result, a Assertion) ([]RowRef, []resolve.Assignment, error) {
	refs := make([]RowRef, len(a.Rows))
	out := make([]resolve.Assignment, len(a.Rows))
	for i, r := range a.Rows {
		ref, err := ParseRowRef(r)
		if err != nil {
			return nil, nil, err
		}
		got, ok := result.Identity[ref]
		if !ok {
			return nil, nil, &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("row %s to be loaded with identifying columns", ref),
				Actual:   "no identity assigned",
			}
		}
		refs[i] = ref
		out[i] = got
	}
	return refs, out, nil
}

func assertSameID(result *Result, a Assertion) error {
	refs, got, err := lookup(result, a)
	if err != nil {
		return err
	}
	for i := 1; i < len(got); i++ {
		if got[i].SiradID != got[0].SiradID {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s and %s share a sirad_id", refs[0], refs[i]),
				Actual:   fmt.Sprintf("%d and %d", got[0].SiradID, got[i].SiradID),
			}
		}
	}
	return nil
}

func assertDistinctID(result *Result, a Assertion) error {
	refs, got, err := lookup(result, a)
	if err != nil {
		return err
	}
	seen := make(map[int64]RowRef)
	for i, g := range got {
		if prev, ok := seen[g.SiradID]; ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s and %s have different sirad_ids", prev, refs[i]),
				Actual:   fmt.Sprintf("both are %d", g.SiradID),
			}
		}
		seen[g.SiradID] = refs[i]
	}
	return nil
}

func assertKeyKind(result *Result, a Assertion) error {
	refs, got, err := lookup(result, a)
	if err != nil {
		return err
	}
	for i, g := range got {
		if string(g.Kind) != a.Kind {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s keyed by %s", refs[i], a.Kind),
				Actual:   string(g.Kind),
			}
		}
	}
	return nil
}

func assertDropped(result *Result, a Assertion) error {
	report, ok := result.Report(a.Dataset)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "dataset " + a.Dataset + " ingested", Actual: "not ingested"}
	}
	if report.Dropped != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d dropped rows in %s", a.Count, a.Dataset),
			Actual:   fmt.Sprintf("%d dropped", report.Dropped),
		}
	}
	return nil
}
