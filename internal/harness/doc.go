// Package harness runs end-to-end scenarios against the full build:
// ingest, resolve, assemble.
//
// # Scenario Format
//
// Scenarios are YAML files with inline rows:
//
//	name: jon_john_smith
//	description: "Same SSN links spelling variants"
//	layouts: ../../../testdata/sample/layouts
//	datasets:
//	  - name: tax
//	    header: [ssn, first_name, last_name, dob, zip, tax_year, agi]
//	    rows:
//	      - ["111-22-3333", Jon, Smith, 01/01/1980, "02860", "2019", "40000"]
//	assertions:
//	  - type: same_id
//	    rows: ["tax:2", "tax:3"]
//
// Rows are referenced as dataset:line, where line 1 is the header, so
// assertions never depend on the salted pii_id permutation.
//
// # Assertion Types
//
//   - same_id: all listed rows share one sirad_id
//   - distinct_id: no two listed rows share a sirad_id
//   - key_kind: every listed row was keyed by kind (ssn, name_dob, unresolved)
//   - dropped: the dataset dropped count rows at ingest
//   - groups: resolution produced count distinct ids
//   - research_rows: the research table holds count rows
//
// # Golden Files
//
// RunWithGolden snapshots every row's sirad_id and key kind into
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
