package harness

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot captures the identity assignment of a scenario run: which
// sirad_id and key kind every input line received. Lines are used instead of
// pii_ids so the snapshot does not depend on the salted permutation.
type Snapshot struct {
	Scenario string            `json:"scenario"`
	Groups   int               `json:"groups"`
	Datasets []DatasetSnapshot `json:"datasets"`
}

// DatasetSnapshot is one dataset's part of a Snapshot.
type DatasetSnapshot struct {
	Name         string        `json:"name"`
	Loaded       int           `json:"loaded"`
	DroppedLines []int         `json:"dropped_lines,omitempty"`
	ResearchRows int           `json:"research_rows"`
	Rows         []RowSnapshot `json:"rows,omitempty"`
}

// RowSnapshot is the assignment of one input line.
type RowSnapshot struct {
	Line    int    `json:"line"`
	SiradID int64  `json:"sirad_id"`
	KeyKind string `json:"key_kind"`
}

// NewSnapshot builds the snapshot of a run, datasets in scenario order and
// rows in line order.
func NewSnapshot(scenario *Scenario, result *Result) Snapshot {
	s := Snapshot{Scenario: scenario.Name, Groups: result.Groups}
	for _, d := range scenario.Datasets {
		ds := DatasetSnapshot{Name: d.Name, ResearchRows: result.Research[d.Name].Rows}
		if report, ok := result.Report(d.Name); ok {
			ds.Loaded = report.Loaded
			for _, f := range report.Failures {
				ds.DroppedLines = append(ds.DroppedLines, f.Line)
			}
		}
		for ref, a := range result.Identity {
			if ref.Dataset == d.Name {
				ds.Rows = append(ds.Rows, RowSnapshot{Line: ref.Line, SiradID: a.SiradID, KeyKind: string(a.Kind)})
			}
		}
		sort.Slice(ds.Rows, func(i, j int) bool { return ds.Rows[i].Line < ds.Rows[j].Line })
		s.Datasets = append(s.Datasets, ds)
	}
	return s
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenario, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
