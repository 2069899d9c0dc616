// Package pipeline runs a full build: ingest every dataset, resolve
// identities, assemble the research store.
//
// Stages are barriers. Datasets ingest concurrently, bounded by
// ingest_workers; resolution and assembly each run once over everything.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/sirad/internal/config"
	"github.com/roach88/sirad/internal/ingest"
	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/layout"
	"github.com/roach88/sirad/internal/metrics"
	"github.com/roach88/sirad/internal/research"
	"github.com/roach88/sirad/internal/resolve"
	"github.com/roach88/sirad/internal/separate"
	"github.com/roach88/sirad/internal/ssn"
	"github.com/roach88/sirad/internal/store"
)

// Pipeline owns the Data, PII and Link stores of one configuration.
type Pipeline struct {
	cfg     *config.Config
	layouts map[string]ir.Layout
	stores  separate.Stores

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	ids     research.IDGenerator
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed to every stage.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics records stage metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock sets the time source for import timestamps and manifests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithIDGenerator sets the research build id generator.
func WithIDGenerator(g research.IDGenerator) Option {
	return func(p *Pipeline) {
		p.ids = g
	}
}

// Open loads the layouts and opens the stores named by cfg.
// The caller must Close the pipeline.
func Open(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		ids:    research.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}

	layouts, err := layout.Load(cfg.Path(cfg.Layouts))
	if err != nil {
		return nil, err
	}
	p.layouts = layout.ByName(layouts)

	var opened []*store.Store
	open := func(path string) (*store.Store, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		s, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		opened = append(opened, s)
		return s, nil
	}
	closeOpened := func() {
		for _, s := range opened {
			s.Close()
		}
	}

	if p.stores.Data, err = open(cfg.Path(cfg.Stores.Data)); err != nil {
		closeOpened()
		return nil, err
	}
	if p.stores.PII, err = open(cfg.Path(cfg.Stores.PII)); err != nil {
		closeOpened()
		return nil, err
	}
	if p.stores.Link, err = open(cfg.Path(cfg.Stores.Link)); err != nil {
		closeOpened()
		return nil, err
	}
	return p, nil
}

// Close closes the stores.
func (p *Pipeline) Close() error {
	var errs []error
	for _, s := range []*store.Store{p.stores.Data, p.stores.PII, p.stores.Link} {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	return errors.Join(errs...)
}

// Stores returns the open stores.
func (p *Pipeline) Stores() separate.Stores {
	return p.stores
}

// Datasets returns the configured datasets, or one per layout when the
// config lists none.
func (p *Pipeline) Datasets() []config.Dataset {
	if len(p.cfg.Datasets) > 0 {
		return p.cfg.Datasets
	}
	names := make([]string, 0, len(p.layouts))
	for name := range p.layouts {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]config.Dataset, len(names))
	for i, n := range names {
		out[i] = config.Dataset{Name: n}
	}
	return out
}

// layoutsFor returns the layout of every named dataset.
func (p *Pipeline) layoutsFor(datasets []config.Dataset) ([]ir.Layout, error) {
	out := make([]ir.Layout, 0, len(datasets))
	for _, d := range datasets {
		l, ok := p.layouts[d.Name]
		if !ok {
			return nil, &ir.ConfigError{
				Code:    ir.ErrCodeMissingLayout,
				Dataset: d.Name,
				Message: "no layout declares this dataset",
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// selectDatasets filters the configured datasets by name; no names means all.
func (p *Pipeline) selectDatasets(names []string) ([]config.Dataset, error) {
	all := p.Datasets()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]config.Dataset, len(all))
	for _, d := range all {
		byName[d.Name] = d
	}
	out := make([]config.Dataset, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, &ir.ConfigError{
				Code:    ir.ErrCodeUnknownDataset,
				Dataset: n,
				Message: "dataset is not configured",
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Pipeline) separator() (*separate.Separator, error) {
	opts := []separate.Option{
		separate.WithClock(p.now),
		separate.WithLogger(p.logger),
		separate.WithMetrics(p.metrics),
	}
	if p.cfg.HashSSN {
		h, err := ssn.NewHasher(p.cfg.PIISalt)
		if err != nil {
			return nil, err
		}
		opts = append(opts, separate.WithSSNHasher(h))
	}
	return separate.New(p.stores, p.cfg.PIISalt, opts...)
}

// Ingest loads the named datasets (all when none are named) concurrently.
// Reports are returned in dataset order. The first fatal error cancels the
// remaining loads.
func (p *Pipeline) Ingest(ctx context.Context, names ...string) ([]separate.LoadReport, error) {
	start := time.Now()
	datasets, err := p.selectDatasets(names)
	if err != nil {
		return nil, err
	}
	layouts, err := p.layoutsFor(datasets)
	if err != nil {
		return nil, err
	}
	sep, err := p.separator()
	if err != nil {
		return nil, err
	}

	reports := make([]separate.LoadReport, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.IngestWorkers)

	for i, d := range datasets {
		i, d := i, d
		g.Go(func() error {
			src, err := ingest.OpenFile(p.cfg.DatasetFile(d), d.Delim())
			if err != nil {
				return fmt.Errorf("ingest %s: %w", d.Name, err)
			}
			defer src.Close()

			report, err := sep.Load(gctx, layouts[i], src)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", d.Name, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.metrics.ObserveStage("ingest", time.Since(start))
	return reports, nil
}

// Resolve rebuilds the identity mapping over every configured dataset.
func (p *Pipeline) Resolve(ctx context.Context) (resolve.Result, error) {
	layouts, err := p.layoutsFor(p.Datasets())
	if err != nil {
		return resolve.Result{}, err
	}
	engine, err := resolve.New(p.stores.PII,
		resolve.WithLogger(p.logger),
		resolve.WithMetrics(p.metrics),
	)
	if err != nil {
		return resolve.Result{}, err
	}
	return engine.Resolve(ctx, layouts)
}

// Assemble builds the research store of the configured version for the
// named datasets. With none named every configured dataset is rebuilt and
// research tables of datasets no longer configured are dropped.
func (p *Pipeline) Assemble(ctx context.Context, datasets ...string) (research.Manifest, error) {
	full := len(datasets) == 0
	if full {
		for _, d := range p.Datasets() {
			datasets = append(datasets, d.Name)
		}
	}
	a, err := research.New(research.Sources{
		Data: p.stores.Data.Path(),
		PII:  p.stores.PII.Path(),
		Link: p.stores.Link.Path(),
	}, p.cfg.Path(p.cfg.Stores.Research),
		research.WithLogger(p.logger),
		research.WithMetrics(p.metrics),
		research.WithClock(p.now),
		research.WithIDGenerator(p.ids),
	)
	if err != nil {
		return research.Manifest{}, err
	}
	if full {
		return a.Rebuild(ctx, p.cfg.Version, datasets...)
	}
	return a.Assemble(ctx, p.cfg.Version, datasets...)
}

// Export writes the configured version's research tables as text files.
func (p *Pipeline) Export(ctx context.Context) ([]string, error) {
	return research.Export(ctx, p.cfg.Path(p.cfg.Stores.Research), p.cfg.Version, p.cfg.ExportDir())
}

// Report summarizes a full build.
type Report struct {
	Ingest   []separate.LoadReport `json:"ingest"`
	Resolve  resolve.Result        `json:"resolve"`
	Research research.Manifest     `json:"research"`
}

// StageError names the stage a build failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Build runs ingest, resolve and assemble in order. Each stage starts only
// after the previous one committed; any error aborts the build.
func (p *Pipeline) Build(ctx context.Context) (Report, error) {
	var r Report
	var err error

	p.logger.Info("build started", "version", p.cfg.Version, "datasets", len(p.Datasets()))

	if r.Ingest, err = p.Ingest(ctx); err != nil {
		return Report{}, &StageError{Stage: "ingest", Err: err}
	}
	if r.Resolve, err = p.Resolve(ctx); err != nil {
		return Report{}, &StageError{Stage: "resolve", Err: err}
	}
	if r.Research, err = p.Assemble(ctx); err != nil {
		return Report{}, &StageError{Stage: "assemble", Err: err}
	}

	p.logger.Info("build finished",
		"version", p.cfg.Version,
		"groups", r.Resolve.Groups,
		"tables", len(r.Research.Tables),
	)
	return r, nil
}
