package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a small end-to-end build with expectations on its outcome.
// Rows are given inline so a scenario file is self-contained apart from
// its layouts.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Layouts is the directory of CUE layouts, relative to the scenario file.
	Layouts string `yaml:"layouts"`

	// Datasets are ingested in order.
	Datasets []DatasetInput `yaml:"datasets"`

	// Assertions validate identity assignment and research output.
	Assertions []Assertion `yaml:"assertions"`
}

// DatasetInput is one raw file, header first.
type DatasetInput struct {
	Name   string     `yaml:"name"`
	Header []string   `yaml:"header"`
	Rows   [][]string `yaml:"rows"`
}

// Assertion checks one property of a scenario run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Rows name input rows as "dataset:line" (same_id, distinct_id, key_kind).
	Rows []string `yaml:"rows,omitempty"`

	// Kind is the expected key kind (key_kind).
	Kind string `yaml:"kind,omitempty"`

	// Dataset names the dataset or research table (dropped, research_rows).
	Dataset string `yaml:"dataset,omitempty"`

	// Count is the expected number (dropped, groups, research_rows).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertSameID       = "same_id"
	AssertDistinctID   = "distinct_id"
	AssertKeyKind      = "key_kind"
	AssertDropped      = "dropped"
	AssertGroups       = "groups"
	AssertResearchRows = "research_rows"
)

// RowRef names an input row by dataset and 1-based file line (the header
// is line 1).
type RowRef struct {
	Dataset string
	Line    int
}

func (r RowRef) String() string {
	return fmt.Sprintf("%s:%d", r.Dataset, r.Line)
}

// ParseRowRef parses "dataset:line".
func ParseRowRef(s string) (RowRef, error) {
	ds, line, ok := strings.Cut(s, ":")
	if !ok || ds == "" {
		return RowRef{}, fmt.Errorf("row %q: want dataset:line", s)
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 2 {
		return RowRef{}, fmt.Errorf("row %q: line must be a number >= 2", s)
	}
	return RowRef{Dataset: ds, Line: n}, nil
}

// LoadScenario reads and parses a scenario YAML file. The layouts path is
// resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Layouts != "" && !filepath.IsAbs(scenario.Layouts) {
		scenario.Layouts = filepath.Join(filepath.Dir(path), scenario.Layouts)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Layouts == "" {
		return fmt.Errorf("layouts is required")
	}
	if _, err := os.Stat(s.Layouts); err != nil {
		return fmt.Errorf("layouts directory not found: %s", s.Layouts)
	}
	if len(s.Datasets) == 0 {
		return fmt.Errorf("datasets list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool)
	for i, d := range s.Datasets {
		if d.Name == "" {
			return fmt.Errorf("datasets[%d]: name is required", i)
		}
		if names[d.Name] {
			return fmt.Errorf("datasets[%d]: duplicate dataset %q", i, d.Name)
		}
		names[d.Name] = true
		if len(d.Header) == 0 {
			return fmt.Errorf("datasets[%d]: header is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], names); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, datasets map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	checkRows := func(min int) error {
		if len(a.Rows) < min {
			return fmt.Errorf("assertions[%d]: %s needs at least %d rows", index, a.Type, min)
		}
		for _, r := range a.Rows {
			ref, err := ParseRowRef(r)
			if err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
			if !datasets[ref.Dataset] {
				return fmt.Errorf("assertions[%d]: unknown dataset %q", index, ref.Dataset)
			}
		}
		return nil
	}

	switch a.Type {
	case AssertSameID, AssertDistinctID:
		return checkRows(2)
	case AssertKeyKind:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for key_kind", index)
		}
		return checkRows(1)
	case AssertDropped, AssertResearchRows:
		if !datasets[a.Dataset] {
			return fmt.Errorf("assertions[%d]: %s needs a known dataset, got %q", index, a.Type, a.Dataset)
		}
	case AssertGroups:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be positive for groups", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
