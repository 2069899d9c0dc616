package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/metrics"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/store"
)

// Engine rebuilds the identity mapping in the PII store.
type Engine struct {
	pii     *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records group and key kind counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine over the PII store.
func New(pii *store.Store, opts ...Option) (*Engine, error) {
	if pii == nil {
		return nil, errors.New("resolve: pii store is required")
	}
	e := &Engine{pii: pii, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RowRef names a PII row without revealing any of its values.
type RowRef struct {
	Dataset string `json:"dataset"`
	PIIID   int64  `json:"pii_id"`
}

// Result summarizes one resolution run.
type Result struct {
	Rows   int             `json:"rows"`
	Groups int             `json:"groups"`
	ByKind map[KeyKind]int `json:"by_kind"`

	// Unresolved rows share the sentinel id and need manual review.
	Unresolved []RowRef `json:"unresolved,omitempty"`

	Assignments []Assignment `json:"-"`
}

// Resolve reads the PII table of every layout that declares identifying
// columns, assigns ids and replaces the sirad_id table in one transaction.
// The same transaction stamps each dataset's PII fingerprint into
// sirad_id_source so assembly can tell a mapping from an older ingest.
//
// A missing or empty PII table is a *ir.ConfigError; nothing is written.
func (e *Engine) Resolve(ctx context.Context, layouts []ir.Layout) (Result, error) {
	start := time.Now()

	var rows []PIIRow
	var sources [][]any
	for _, l := range layouts {
		if !l.HasPII() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("resolve: %w", err)
		}
		part, fp, err := e.read(ctx, l)
		if err != nil {
			return Result{}, err
		}
		rows = append(rows, part...)
		sources = append(sources, []any{l.Dataset, int64(len(part)), fp})
	}
	assignments := Assign(rows)

	mapped := make([][]any, len(assignments))
	for i, a := range assignments {
		mapped[i] = []any{a.Dataset, a.PIIID, a.SiradID, string(a.Kind)}
	}
	err := e.pii.ReplaceAll(ctx,
		store.TableData{Def: MappingTable(), Rows: mapped},
		store.TableData{Def: SourceTable(), Rows: sources},
	)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: write %s: %w", ir.IdentityTable, err)
	}

	res := Result{
		Rows:        len(assignments),
		Groups:      Groups(assignments),
		ByKind:      make(map[KeyKind]int),
		Assignments: assignments,
	}
	for _, a := range assignments {
		res.ByKind[a.Kind]++
		if a.Kind == KindUnresolved {
			res.Unresolved = append(res.Unresolved, RowRef{Dataset: a.Dataset, PIIID: a.PIIID})
			e.logger.Warn("pii row has no identity key; flagged for manual review",
				"dataset", a.Dataset,
				"pii_id", a.PIIID,
				"sirad_id", a.SiradID,
			)
		}
	}

	e.metrics.SetIdentityGroups(res.Groups)
	for kind, n := range res.ByKind {
		e.metrics.AddIdentityRows(string(kind), n)
	}
	e.metrics.ObserveStage("resolve", time.Since(start))

	e.logger.Info("identity resolved",
		"rows", res.Rows,
		"groups", res.Groups,
		"ssn", res.ByKind[KindSSN],
		"name_dob", res.ByKind[KindNameDOB],
		"unresolved", res.ByKind[KindUnresolved],
	)
	return res, nil
}

// read loads the union view rows of one dataset and fingerprints the whole
// PII table they came from.
func (e *Engine) read(ctx context.Context, l ir.Layout) ([]PIIRow, string, error) {
	table := l.Dataset
	ok, err := e.pii.HasTable(ctx, table)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", l.Dataset, err)
	}
	if !ok {
		return nil, "", &ir.ConfigError{
			Code:    ir.ErrCodeMissingTable,
			Dataset: l.Dataset,
			Table:   "pii." + table,
			Message: "pii table not found; ingest the dataset first",
		}
	}

	result, err := e.pii.Select(ctx, queryir.Select{
		From:    queryir.Table{Name: table},
		Star:    true,
		OrderBy: []queryir.Column{{Name: ir.ColPIIID}},
	})
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: read pii table: %w", l.Dataset, err)
	}
	if len(result.Values) == 0 {
		return nil, "", &ir.ConfigError{
			Code:    ir.ErrCodeEmptyTable,
			Dataset: l.Dataset,
			Table:   "pii." + table,
			Message: "pii table has no rows",
		}
	}
	fp, err := result.Fingerprint()
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", l.Dataset, err)
	}

	// Roles the layout lacks are read as "".
	index := make(map[string]int)
	for i, name := range result.Columns {
		index[name] = i
	}
	idCol, ok := index[ir.ColPIIID]
	if !ok {
		return nil, "", fmt.Errorf("resolve %s: pii table has no %s column", l.Dataset, ir.ColPIIID)
	}
	field := func(row []any, role string) string {
		i, ok := index[role]
		if !ok {
			return ""
		}
		return ir.NormalizeText(text(row[i]))
	}

	out := make([]PIIRow, 0, len(result.Values))
	for _, row := range result.Values {
		id, err := integer(row[idCol])
		if err != nil {
			return nil, "", fmt.Errorf("resolve %s: %w", l.Dataset, err)
		}
		out = append(out, PIIRow{
			Dataset:   l.Dataset,
			PIIID:     id,
			SSN:       field(row, ir.RoleSSN),
			FirstName: field(row, ir.RoleFirstName),
			LastName:  field(row, ir.RoleLastName),
			DOB:       field(row, ir.RoleDOB),
		})
	}
	return out, fp, nil
}

// MappingTable is the definition of the sirad_id table.
func MappingTable() queryir.CreateTable {
	return queryir.CreateTable{
		Target: queryir.Table{Name: ir.IdentityTable},
		Columns: []queryir.ColumnDef{
			{Name: ir.ColDataset, Kind: ir.KindText, NotNull: true},
			{Name: ir.ColPIIID, Kind: ir.KindInt, NotNull: true},
			{Name: ir.ColSiradID, Kind: ir.KindInt, NotNull: true},
			{Name: ir.ColKeyKind, Kind: ir.KindText, NotNull: true},
		},
		PrimaryKey: []string{ir.ColDataset, ir.ColPIIID},
	}
}

// SourceTable is the definition of the sirad_id_source table.
func SourceTable() queryir.CreateTable {
	return queryir.CreateTable{
		Target: queryir.Table{Name: ir.IdentitySourceTable},
		Columns: []queryir.ColumnDef{
			{Name: ir.ColDataset, Kind: ir.KindText, NotNull: true},
			{Name: ir.ColPIIRows, Kind: ir.KindInt, NotNull: true},
			{Name: ir.ColPIIFingerprint, Kind: ir.KindText, NotNull: true},
		},
		PrimaryKey: []string{ir.ColDataset},
	}
}

// text converts a driver value to a string; NULL becomes "".
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func integer(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("pii_id: unexpected value type %T", v)
	}
}
