package resolve

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sirad/internal/ingest"
	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/metrics"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/separate"
	"github.com/roach88/sirad/internal/store"
	fixtures "github.com/roach88/sirad/internal/testutil"
)

func openStores(t *testing.T) separate.Stores {
	t.Helper()
	dir := t.TempDir()
	open := func(name string) *store.Store {
		s, err := store.Open(filepath.Join(dir, name+".db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}
	return separate.Stores{Data: open("data"), PII: open("pii"), Link: open("link")}
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

// loadSample ingests tax and credit_scores rows that exercise every key kind.
func loadSample(t *testing.T, stores separate.Stores) []ir.Layout {
	t.Helper()
	ctx := context.Background()
	sep, err := separate.New(stores, "pii-secret",
		separate.WithClock(fixtures.NewDeterministicClock().Now),
		separate.WithLogger(quietLogger(&bytes.Buffer{})),
	)
	require.NoError(t, err)

	_, err = sep.Load(ctx, fixtures.TaxLayout(), ingest.NewSliceSource(fixtures.TaxHeader,
		[]string{"123-45-6789", "Ada", "Lovelace", "01/31/1980", "02903", "2019", "52000"},
		[]string{"987-65-4321", "Alan", "Turing", "06/23/1972", "02906", "2019", "61000"},
		[]string{"123-45-6789", "Ada", "Lovelace", "01/31/1980", "02903", "2020", "53000"},
	))
	require.NoError(t, err)

	_, err = sep.Load(ctx, fixtures.CreditLayout(), ingest.NewSliceSource(fixtures.CreditHeader,
		[]string{"Ada", "Lovelace", "1980-01-31", "710"},
		[]string{"Grace", "Hopper", "1966-12-09", "650"},
		[]string{"Alan", "Turing", "", "700"},
	))
	require.NoError(t, err)

	_, err = sep.Load(ctx, fixtures.WagesLayout(), ingest.NewSliceSource(fixtures.WagesHeader,
		[]string{"2019", "retail", "31000"},
	))
	require.NoError(t, err)

	return []ir.Layout{fixtures.TaxLayout(), fixtures.CreditLayout(), fixtures.WagesLayout()}
}

// piiIDs returns the pii_ids of rows in table with the given first name.
func piiIDs(t *testing.T, s *store.Store, table, first string) []int64 {
	t.Helper()
	rows, err := s.Select(context.Background(), queryir.Select{
		From:    queryir.Table{Name: table},
		Columns: []queryir.Column{{Name: ir.ColPIIID}},
		Filter:  queryir.Equals{Field: queryir.Column{Name: ir.RoleFirstName}, Value: ir.Text(first)},
	})
	require.NoError(t, err)
	var out []int64
	for _, r := range rows.Values {
		out = append(out, r[0].(int64))
	}
	return out
}

func mapping(t *testing.T, s *store.Store) store.Rows {
	t.Helper()
	rows, err := s.Select(context.Background(), queryir.Select{
		From: queryir.Table{Name: ir.IdentityTable},
		Star: true,
		OrderBy: []queryir.Column{
			{Name: ir.ColDataset},
			{Name: ir.ColPIIID},
		},
	})
	require.NoError(t, err)
	return rows
}

func TestResolve_Sample(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	layouts := loadSample(t, stores)

	var logs bytes.Buffer
	m := metrics.New()
	engine, err := New(stores.PII, WithLogger(quietLogger(&logs)), WithMetrics(m))
	require.NoError(t, err)

	res, err := engine.Resolve(ctx, layouts)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Rows)
	assert.Equal(t, 4, res.Groups)
	assert.Equal(t, map[KeyKind]int{KindSSN: 4, KindNameDOB: 1, KindUnresolved: 1}, res.ByKind)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "credit_scores", res.Unresolved[0].Dataset)

	ids := make(map[RowRef]int64)
	for _, a := range res.Assignments {
		ids[RowRef{Dataset: a.Dataset, PIIID: a.PIIID}] = a.SiradID
	}

	taxAda := piiIDs(t, stores.PII, "tax", "Ada")
	require.Len(t, taxAda, 2)
	creditAda := piiIDs(t, stores.PII, "credit_scores", "Ada")
	require.Len(t, creditAda, 1)

	// Credit has no SSN column; the tax consensus links it.
	adaID := ids[ref("tax", taxAda[0])]
	assert.Equal(t, adaID, ids[ref("tax", taxAda[1])])
	assert.Equal(t, adaID, ids[ref("credit_scores", creditAda[0])])

	// Undated credit Alan cannot join tax Alan.
	taxAlan := piiIDs(t, stores.PII, "tax", "Alan")
	creditAlan := piiIDs(t, stores.PII, "credit_scores", "Alan")
	assert.Equal(t, int64(1), ids[ref("credit_scores", creditAlan[0])])
	assert.NotEqual(t, ids[ref("tax", taxAlan[0])], ids[ref("credit_scores", creditAlan[0])])

	table := mapping(t, stores.PII)
	assert.Equal(t, []string{"dsn", "pii_id", "sirad_id", "key_kind"}, table.Columns)
	require.Len(t, table.Values, 6)
	for i, a := range res.Assignments {
		assert.Equal(t, []any{a.Dataset, a.PIIID, a.SiradID, string(a.Kind)}, table.Values[i])
	}

	assert.Contains(t, logs.String(), "flagged for manual review")
	assert.NotContains(t, logs.String(), "Turing")
	assert.NotContains(t, logs.String(), "Lovelace")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.IdentityGroups))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.IdentityRows.WithLabelValues("ssn")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdentityRows.WithLabelValues("unresolved")))
}

func TestResolve_Deterministic(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	layouts := loadSample(t, stores)

	engine, err := New(stores.PII, WithLogger(quietLogger(&bytes.Buffer{})))
	require.NoError(t, err)

	_, err = engine.Resolve(ctx, layouts)
	require.NoError(t, err)
	first := mapping(t, stores.PII)

	// Layout order does not matter either.
	reversed := []ir.Layout{layouts[2], layouts[1], layouts[0]}
	_, err = engine.Resolve(ctx, reversed)
	require.NoError(t, err)

	assert.Equal(t, first, mapping(t, stores.PII))
}

func TestResolve_MissingPIITable(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)

	engine, err := New(stores.PII, WithLogger(quietLogger(&bytes.Buffer{})))
	require.NoError(t, err)

	_, err = engine.Resolve(ctx, []ir.Layout{fixtures.TaxLayout()})
	require.Error(t, err)

	var ce *ir.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ir.ErrCodeMissingTable, ce.Code)
	assert.Equal(t, "tax", ce.Dataset)
	assert.Equal(t, "pii.tax", ce.Table)

	ok, err := stores.PII.HasTable(ctx, ir.IdentityTable)
	require.NoError(t, err)
	assert.False(t, ok, "nothing is written on a configuration error")
}

func TestResolve_EmptyPIITable(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)

	sep, err := separate.New(stores, "pii-secret", separate.WithLogger(quietLogger(&bytes.Buffer{})))
	require.NoError(t, err)
	require.NoError(t, sep.Recreate(ctx, fixtures.CreditLayout()))

	engine, err := New(stores.PII, WithLogger(quietLogger(&bytes.Buffer{})))
	require.NoError(t, err)

	_, err = engine.Resolve(ctx, []ir.Layout{fixtures.CreditLayout()})
	var ce *ir.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ir.ErrCodeEmptyTable, ce.Code)
}

func TestResolve_NoIdentifyingDatasets(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)

	engine, err := New(stores.PII, WithLogger(quietLogger(&bytes.Buffer{})))
	require.NoError(t, err)

	res, err := engine.Resolve(ctx, []ir.Layout{fixtures.WagesLayout()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)

	assert.Empty(t, mapping(t, stores.PII).Values)
}

func TestResolve_StampsPIISources(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	layouts := loadSample(t, stores)

	engine, err := New(stores.PII, WithLogger(quietLogger(&bytes.Buffer{})))
	require.NoError(t, err)
	_, err = engine.Resolve(ctx, layouts)
	require.NoError(t, err)

	sources, err := stores.PII.Select(ctx, queryir.Select{
		From:    queryir.Table{Name: ir.IdentitySourceTable},
		Star:    true,
		OrderBy: []queryir.Column{{Name: ir.ColDataset}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dsn", "pii_rows", "pii_fingerprint"}, sources.Columns)
	require.Len(t, sources.Values, 2, "wages has no pii table")

	for i, ds := range []string{"credit_scores", "tax"} {
		pii, err := stores.PII.Select(ctx, queryir.Select{From: queryir.Table{Name: ds}, Star: true})
		require.NoError(t, err)
		want, err := pii.Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, []any{ds, int64(len(pii.Values)), want}, sources.Values[i])
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
