package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sirad/internal/config"
	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/metrics"
	"github.com/roach88/sirad/internal/research"
	"github.com/roach88/sirad/internal/resolve"
	"github.com/roach88/sirad/internal/store"
	"github.com/roach88/sirad/internal/testutil"
)

func sampleConfig(t *testing.T) *config.Config {
	t.Helper()
	sample, err := filepath.Abs(filepath.Join("..", "..", "testdata", "sample"))
	require.NoError(t, err)

	cfg := config.Default(t.TempDir())
	cfg.PIISalt = "pii-secret"
	cfg.Layouts = filepath.Join(sample, "layouts")
	cfg.Raw = filepath.Join(sample, "raw")
	cfg.IngestWorkers = 2
	cfg.Datasets = []config.Dataset{
		{Name: "tax", File: "tax.txt"},
		{Name: "credit_scores", File: "credit_scores.txt"},
		{Name: "wages", File: "wages.txt"},
	}
	return cfg
}

func fixedClock() time.Time { return testutil.Epoch }

func openPipeline(t *testing.T, cfg *config.Config, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		WithClock(fixedClock),
		WithIDGenerator(research.NewFixedGenerator("build-1", "build-2")),
	}, opts...)
	p, err := Open(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestBuild_Sample(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	p := openPipeline(t, sampleConfig(t), WithMetrics(m))

	report, err := p.Build(ctx)
	require.NoError(t, err)

	require.Len(t, report.Ingest, 3)
	assert.Equal(t, "tax", report.Ingest[0].Dataset)
	assert.Equal(t, 8, report.Ingest[0].Read)
	assert.Equal(t, 7, report.Ingest[0].Loaded)
	assert.Equal(t, 1, report.Ingest[0].Dropped)
	assert.Equal(t, 4, report.Ingest[1].Loaded)
	assert.Equal(t, 3, report.Ingest[2].Loaded)

	assert.Equal(t, 11, report.Resolve.Rows)
	assert.Equal(t, 7, report.Resolve.Groups)
	assert.Equal(t, map[resolve.KeyKind]int{
		resolve.KindSSN:        7,
		resolve.KindNameDOB:    3,
		resolve.KindUnresolved: 1,
	}, report.Resolve.ByKind)

	require.Len(t, report.Research.Tables, 3)
	rows := map[string]int{}
	for _, tr := range report.Research.Tables {
		rows[tr.Name] = tr.Rows
	}
	assert.Equal(t, map[string]int{"tax": 7, "credit_scores": 4, "wages": 3}, rows)

	assert.Equal(t, 7.0, promtest.ToFloat64(m.RowsLoaded.WithLabelValues("tax")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RowsDropped.WithLabelValues("tax")))
	assert.Equal(t, 7.0, promtest.ToFloat64(m.IdentityGroups))
}

func TestBuild_Reproducible(t *testing.T) {
	ctx := context.Background()
	cfg := sampleConfig(t)
	p := openPipeline(t, cfg)

	first, err := p.Build(ctx)
	require.NoError(t, err)
	second, err := p.Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Resolve.Assignments, second.Resolve.Assignments)
	for i := range first.Research.Tables {
		assert.Equal(t, first.Research.Tables[i].Fingerprint, second.Research.Tables[i].Fingerprint,
			first.Research.Tables[i].Name)
	}
	assert.NotEqual(t, first.Research.BuildID, second.Research.BuildID)
}

func TestAssemble_DropsUnconfiguredDatasets(t *testing.T) {
	ctx := context.Background()
	cfg := sampleConfig(t)

	_, err := openPipeline(t, cfg).Build(ctx)
	require.NoError(t, err)

	narrowed := *cfg
	narrowed.Datasets = cfg.Datasets[:2]
	m, err := openPipeline(t, &narrowed).Assemble(ctx)
	require.NoError(t, err)
	require.Len(t, m.Tables, 2)

	rs, err := store.Open(m.Store, store.ReadOnly())
	require.NoError(t, err)
	defer rs.Close()
	tables, err := rs.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"credit_scores", "tax"}, tables)
}

func TestIngest_SelectedDatasets(t *testing.T) {
	ctx := context.Background()
	p := openPipeline(t, sampleConfig(t))

	reports, err := p.Ingest(ctx, "wages")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "wages", reports[0].Dataset)

	ok, err := p.Stores().Data.HasTable(ctx, "tax")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.Ingest(ctx, "payroll")
	var ce *ir.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ir.ErrCodeUnknownDataset, ce.Code)
}

func TestIngest_MissingLayout(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Datasets = append(cfg.Datasets, config.Dataset{Name: "payroll"})
	p := openPipeline(t, cfg)

	_, err := p.Ingest(context.Background())
	var ce *ir.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ir.ErrCodeMissingLayout, ce.Code)
	assert.Equal(t, "payroll", ce.Dataset)
}

func TestBuild_StageError(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Datasets[0].File = "missing.txt"
	p := openPipeline(t, cfg)

	_, err := p.Build(context.Background())
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "ingest", se.Stage)
	assert.Contains(t, err.Error(), "ingest tax")
}

func TestResolve_BeforeIngest(t *testing.T) {
	p := openPipeline(t, sampleConfig(t))

	_, err := p.Resolve(context.Background())
	assert.True(t, ir.IsConfigError(err))
}

func TestDatasets_DefaultsToLayouts(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Datasets = nil
	p := openPipeline(t, cfg)

	var names []string
	for _, d := range p.Datasets() {
		names = append(names, d.Name)
		assert.Equal(t, '|', d.Delim())
	}
	assert.Equal(t, []string{"credit_scores", "tax", "wages"}, names)
	assert.Equal(t, filepath.Join(cfg.Raw, "tax.txt"), cfg.DatasetFile(config.Dataset{Name: "tax"}))
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	cfg := sampleConfig(t)
	p := openPipeline(t, cfg)

	_, err := p.Build(ctx)
	require.NoError(t, err)

	paths, err := p.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	for _, path := range paths {
		assert.Equal(t, cfg.ExportDir(), filepath.Dir(path))
	}
}
