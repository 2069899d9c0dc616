package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/metrics"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/store"
)

// Sources are the file paths of the stores a research build reads.
type Sources struct {
	Data string
	PII  string
	Link string
}

// Assembler builds versioned research stores.
type Assembler struct {
	sources Sources
	dir     string
	ids     IDGenerator
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = l
	}
}

// WithMetrics records research table sizes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// WithClock sets the manifest creation time source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// WithIDGenerator sets the build id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(a *Assembler) {
		a.ids = g
	}
}

// New creates an Assembler writing research stores into dir.
func New(sources Sources, dir string, opts ...Option) (*Assembler, error) {
	if sources.Data == "" || sources.PII == "" || sources.Link == "" {
		return nil, errors.New("research: data, pii and link store paths are required")
	}
	if dir == "" {
		return nil, errors.New("research: output directory is required")
	}
	a := &Assembler{
		sources: sources,
		dir:     dir,
		ids:     UUIDv7Generator{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Assemble rebuilds the research tables of version. With no datasets named
// every table of the Data Store is assembled and research tables of
// datasets the Data Store no longer holds are dropped. Naming datasets
// rebuilds only those and leaves the other tables alone.
//
// Each table is dropped and rebuilt in its own transaction. A dataset the
// Data Store does not hold, or one whose PII table has no link table or no
// identity mapping for its current rows, is a *ir.ConfigError and stops the
// build.
func (a *Assembler) Assemble(ctx context.Context, version string, datasets ...string) (Manifest, error) {
	return a.assemble(ctx, version, datasets, len(datasets) == 0)
}

// Rebuild assembles exactly datasets: every other research table of version
// is dropped, so the store and its manifest list the same tables.
func (a *Assembler) Rebuild(ctx context.Context, version string, datasets ...string) (Manifest, error) {
	return a.assemble(ctx, version, datasets, true)
}

func (a *Assembler) assemble(ctx context.Context, version string, datasets []string, prune bool) (Manifest, error) {
	start := time.Now()
	if !ValidVersion(version) {
		return Manifest{}, fmt.Errorf("assemble: invalid version %q", version)
	}
	for _, path := range []string{a.sources.Data, a.sources.PII, a.sources.Link} {
		if _, err := os.Stat(path); err != nil {
			return Manifest{}, &ir.ConfigError{
				Code:    ir.ErrCodeMissingStore,
				Table:   path,
				Message: "source store not found; ingest first",
			}
		}
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("assemble: create research dir: %w", err)
	}

	path := StorePath(a.dir, version)
	rs, err := store.Open(path, store.WithJournal(store.JournalDelete))
	if err != nil {
		return Manifest{}, fmt.Errorf("assemble: %w", err)
	}
	defer rs.Close()

	sess, err := rs.Session(ctx)
	if err != nil {
		return Manifest{}, fmt.Errorf("assemble: %w", err)
	}
	defer sess.Close()

	for _, att := range []struct{ schema, path string }{
		{SchemaData, a.sources.Data},
		{SchemaPII, a.sources.PII},
		{SchemaLink, a.sources.Link},
	} {
		if err := sess.Attach(ctx, att.schema, att.path); err != nil {
			return Manifest{}, fmt.Errorf("assemble: %w", err)
		}
	}

	datasets, err = a.resolveDatasets(ctx, sess, datasets)
	if err != nil {
		return Manifest{}, err
	}
	if prune {
		if err := a.prune(ctx, sess, datasets); err != nil {
			return Manifest{}, err
		}
	}

	m := Manifest{
		BuildID:   a.ids.Generate(),
		Version:   version,
		CreatedAt: a.now().UTC(),
		Store:     path,
	}
	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return Manifest{}, fmt.Errorf("assemble: %w", err)
		}
		result, err := a.assembleOne(ctx, sess, ds)
		if err != nil {
			return Manifest{}, err
		}
		m.Tables = append(m.Tables, result)
		a.metrics.SetResearchRows(ds, result.Rows)
		a.logger.Info("research table built",
			"table", ds,
			"source", result.Source,
			"rows", result.Rows,
		)
	}

	if err := WriteManifest(ManifestPath(a.dir, version), m); err != nil {
		return Manifest{}, fmt.Errorf("assemble: %w", err)
	}
	a.metrics.ObserveStage("assemble", time.Since(start))
	return m, nil
}

// resolveDatasets defaults to every data table and rejects unknown names.
func (a *Assembler) resolveDatasets(ctx context.Context, sess *store.Session, named []string) ([]string, error) {
	tables, err := sess.Tables(ctx, SchemaData)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	if len(named) == 0 {
		return tables, nil
	}

	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t] = true
	}
	for _, ds := range named {
		if !known[ds] {
			return nil, &ir.ConfigError{
				Code:    ir.ErrCodeUnknownDataset,
				Dataset: ds,
				Message: "dataset not found in the data store",
			}
		}
	}
	return named, nil
}

// prune drops research tables that are not being built.
func (a *Assembler) prune(ctx context.Context, sess *store.Session, keep []string) error {
	existing, err := sess.Tables(ctx, "")
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	var drops []queryir.Statement
	for _, t := range existing {
		if slices.Contains(keep, t) {
			continue
		}
		drops = append(drops, queryir.DropTable{Target: queryir.Table{Name: t}})
		a.logger.Info("research table dropped", "table", t)
	}
	if len(drops) == 0 {
		return nil
	}
	if err := sess.ExecTx(ctx, drops...); err != nil {
		return fmt.Errorf("assemble: drop stale tables: %w", err)
	}
	return nil
}

func (a *Assembler) assembleOne(ctx context.Context, sess *store.Session, dataset string) (TableResult, error) {
	hasPII, err := sess.HasTable(ctx, SchemaPII, dataset)
	if err != nil {
		return TableResult{}, fmt.Errorf("assemble %s: %w", dataset, err)
	}

	var plan queryir.Query
	source := SourceCopy
	if hasPII {
		if err := a.checkIdentity(ctx, sess, dataset); err != nil {
			return TableResult{}, err
		}
		cols, err := sess.Columns(ctx, SchemaData, dataset)
		if err != nil {
			return TableResult{}, fmt.Errorf("assemble %s: %w", dataset, err)
		}
		plan = JoinPlan(dataset, cols)
		source = SourceJoin
	} else {
		plan = CopyPlan(dataset)
	}

	target := queryir.Table{Name: dataset}
	if err := sess.ExecTx(ctx,
		queryir.DropTable{Target: target},
		queryir.CreateTableAs{Target: target, Query: plan},
	); err != nil {
		return TableResult{}, fmt.Errorf("assemble %s: build research table: %w", dataset, err)
	}

	rows, err := sess.Select(ctx, queryir.Select{From: target, Star: true})
	if err != nil {
		return TableResult{}, fmt.Errorf("assemble %s: %w", dataset, err)
	}
	fp, err := rows.Fingerprint()
	if err != nil {
		return TableResult{}, fmt.Errorf("assemble %s: %w", dataset, err)
	}

	return TableResult{
		Name:        dataset,
		Source:      source,
		Columns:     rows.Columns,
		Rows:        len(rows.Values),
		Fingerprint: fp,
	}, nil
}

// checkIdentity requires a link table and an identity mapping computed from
// the dataset's current PII rows, with an id for every one of them.
func (a *Assembler) checkIdentity(ctx context.Context, sess *store.Session, dataset string) error {
	ok, err := sess.HasTable(ctx, SchemaLink, dataset)
	if err != nil {
		return fmt.Errorf("assemble %s: %w", dataset, err)
	}
	if !ok {
		return &ir.ConfigError{
			Code:    ir.ErrCodeMissingTable,
			Dataset: dataset,
			Table:   SchemaLink + "." + dataset,
			Message: "link table not found; ingest the dataset again",
		}
	}

	ok, err = sess.HasTable(ctx, SchemaPII, ir.IdentityTable)
	if err != nil {
		return fmt.Errorf("assemble %s: %w", dataset, err)
	}
	if !ok {
		return &ir.ConfigError{
			Code:    ir.ErrCodeMissingTable,
			Dataset: dataset,
			Table:   SchemaPII + "." + ir.IdentityTable,
			Message: "identity mapping not found; run resolve first",
		}
	}

	stale := func(msg string) error {
		return &ir.ConfigError{
			Code:    ir.ErrCodeStaleMapping,
			Dataset: dataset,
			Table:   SchemaPII + "." + ir.IdentityTable,
			Message: msg + "; run resolve first",
		}
	}

	ok, err = sess.HasTable(ctx, SchemaPII, ir.IdentitySourceTable)
	if err != nil {
		return fmt.Errorf("assemble %s: %w", dataset, err)
	}
	if !ok {
		return stale("identity mapping has no source stamps")
	}
	stamp, err := sess.Select(ctx, queryir.Select{
		From:    queryir.Table{Schema: SchemaPII, Name: ir.IdentitySourceTable},
		Columns: []queryir.Column{{Name: ir.ColPIIRows}, {Name: ir.ColPIIFingerprint}},
		Filter:  queryir.Equals{Field: queryir.Column{Name: ir.ColDataset}, Value: ir.Text(dataset)},
	})
	if err != nil {
		return fmt.Errorf("assemble %s: %w", dataset, err)
	}
	if len(stamp.Values) == 0 {
		return stale("identity mapping was built without this dataset")
	}

	pii, err := sess.Select(ctx, queryir.Select{
		From:    queryir.Table{Schema: SchemaPII, Name: dataset},
		Star:    true,
		OrderBy: []queryir.Column{{Name: ir.ColPIIID}},
	})
	if err != nil {
		return fmt.Errorf("assemble %s: %w", dataset, err)
	}
	current, err := pii.Fingerprint()
	if err != nil {
		return fmt.Errorf("assemble %s: %w", dataset, err)
	}
	stampedRows, _ := stamp.Values[0][0].(int64)
	stampedFP, _ := stamp.Values[0][1].(string)
	if stampedRows != int64(len(pii.Values)) {
		return stale(fmt.Sprintf("identity mapping was built from %d pii rows, found %d", stampedRows, len(pii.Values)))
	}
	if stampedFP != current {
		return stale("pii rows changed since the identity mapping was built")
	}

	// Every pii row must have an assigned id in the mapping.
	covered, err := sess.Select(ctx, queryir.Join{
		Left: queryir.Select{
			From:    queryir.Table{Schema: SchemaPII, Name: dataset},
			Alias:   "p",
			Columns: []queryir.Column{queryir.Col("p", ir.ColPIIID)},
			OrderBy: []queryir.Column{queryir.Col("p", ir.ColPIIID)},
		},
		Right: queryir.Select{
			From:   queryir.Table{Schema: SchemaPII, Name: ir.IdentityTable},
			Alias:  "r",
			Filter: queryir.IsNotNull{Field: queryir.Col("r", ir.ColSiradID)},
		},
		On: queryir.And{Predicates: []queryir.Predicate{
			queryir.ColumnEquals{Left: queryir.Col("r", ir.ColPIIID), Right: queryir.Col("p", ir.ColPIIID)},
			queryir.Equals{Field: queryir.Col("r", ir.ColDataset), Value: ir.Text(dataset)},
		}},
	})
	if err != nil {
		return fmt.Errorf("assemble %s: %w", dataset, err)
	}
	if len(covered.Values) != len(pii.Values) {
		return stale(fmt.Sprintf("identity mapping covers %d of %d pii rows", len(covered.Values), len(pii.Values)))
	}
	return nil
}
