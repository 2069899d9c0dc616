package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/sirad/internal/ingest"
	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/layout"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/research"
	"github.com/roach88/sirad/internal/resolve"
	"github.com/roach88/sirad/internal/separate"
	"github.com/roach88/sirad/internal/store"
	"github.com/roach88/sirad/internal/testutil"
)

// Salt keys pii_id permutations in every scenario run.
const Salt = "scenario-salt"

// Run executes a scenario in a fresh temporary directory and evaluates its
// assertions.
//
// Each run ingests the datasets in order with a deterministic clock,
// resolves identities over every dataset and assembles research tables
// with a fixed build id. Returns an error when the build itself fails;
// failed assertions are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "sirad-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	layouts, err := layout.Load(scenario.Layouts)
	if err != nil {
		return nil, err
	}
	byName := layout.ByName(layouts)

	paths := research.Sources{
		Data: filepath.Join(dir, "data.db"),
		PII:  filepath.Join(dir, "pii.db"),
		Link: filepath.Join(dir, "link.db"),
	}
	stores, closeStores, err := openStores(paths)
	if err != nil {
		return nil, err
	}
	defer closeStores()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock()

	sep, err := separate.New(stores, Salt,
		separate.WithClock(clock.Now),
		separate.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	var used []ir.Layout
	for _, d := range scenario.Datasets {
		l, ok := byName[d.Name]
		if !ok {
			return nil, &ir.ConfigError{Code: ir.ErrCodeMissingLayout, Dataset: d.Name, Message: "no layout declares this dataset"}
		}
		used = append(used, l)

		report, err := sep.Load(ctx, l, ingest.NewSliceSource(d.Header, d.Rows...))
		if err != nil {
			return nil, fmt.Errorf("ingest %s: %w", d.Name, err)
		}
		result.Reports = append(result.Reports, report)
	}

	engine, err := resolve.New(stores.PII, resolve.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	resolved, err := engine.Resolve(ctx, used)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	result.Groups = resolved.Groups

	if err := mapLines(ctx, stores.Link, result, resolved.Assignments); err != nil {
		return nil, err
	}

	asm, err := research.New(paths, filepath.Join(dir, "research"),
		research.WithLogger(logger),
		research.WithClock(clock.Now),
		research.WithIDGenerator(research.NewFixedGenerator("scenario-"+scenario.Name)),
	)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(scenario.Datasets))
	for i, d := range scenario.Datasets {
		names[i] = d.Name
	}
	manifest, err := asm.Assemble(ctx, "1", names...)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	for _, tr := range manifest.Tables {
		result.Research[tr.Name] = tr
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func openStores(paths research.Sources) (separate.Stores, func(), error) {
	var opened []*store.Store
	closeAll := func() {
		for _, s := range opened {
			s.Close()
		}
	}
	for _, p := range []string{paths.Data, paths.PII, paths.Link} {
		s, err := store.Open(p)
		if err != nil {
			closeAll()
			return separate.Stores{}, nil, err
		}
		opened = append(opened, s)
	}
	return separate.Stores{Data: opened[0], PII: opened[1], Link: opened[2]}, closeAll, nil
}

// mapLines resolves every loaded row's input line to its assignment through
// the link table: line -> record_id -> pii_id -> sirad_id.
func mapLines(ctx context.Context, link *store.Store, result *Result, assignments []resolve.Assignment) error {
	byPII := make(map[resolve.RowRef]resolve.Assignment, len(assignments))
	for _, a := range assignments {
		byPII[resolve.RowRef{Dataset: a.Dataset, PIIID: a.PIIID}] = a
	}

	for _, report := range result.Reports {
		ok, err := link.HasTable(ctx, report.Dataset)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		rows, err := link.Select(ctx, queryir.Select{
			From:    queryir.Table{Name: report.Dataset},
			Columns: []queryir.Column{{Name: ir.ColRecordID}, {Name: ir.ColPIIID}},
		})
		if err != nil {
			return fmt.Errorf("read link %s: %w", report.Dataset, err)
		}
		for _, row := range rows.Values {
			recordID, piiID := row[0].(int64), row[1].(int64)
			line := report.Lines[recordID-1]
			a := byPII[resolve.RowRef{Dataset: report.Dataset, PIIID: piiID}]
			result.Identity[RowRef{Dataset: report.Dataset, Line: line}] = a
		}
	}
	return nil
}
