package separate

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/ssn"
)

// DataRow is the non-identifying part of a record.
type DataRow struct {
	RecordID int64

	// Values follow Layout.DataColumns order, transforms applied.
	Values []ir.Value

	// ValidSSN is Int(1) or Int(0) when the layout has an ssn column,
	// Null otherwise.
	ValidSSN ir.Value

	ImportDT string
}

// Params returns the row in data table column order.
func (r DataRow) Params() []any {
	out := make([]any, 0, len(r.Values)+3)
	out = append(out, r.RecordID)
	for _, v := range r.Values {
		out = append(out, v.Param())
	}
	return append(out, r.ValidSSN.Param(), r.ImportDT)
}

// PiiRow is the identifying part of a record.
type PiiRow struct {
	PIIID int64

	// Values follow Layout.PIIColumns order.
	Values []ir.Value

	ImportDT string
}

// Params returns the row in pii table column order.
func (r PiiRow) Params() []any {
	out := make([]any, 0, len(r.Values)+2)
	out = append(out, r.PIIID)
	for _, v := range r.Values {
		out = append(out, v.Param())
	}
	return append(out, r.ImportDT)
}

// LinkRow joins a data row to its pii row.
type LinkRow struct {
	RecordID int64
	PIIID    int64
}

// Params returns the row in link table column order.
func (r LinkRow) Params() []any {
	return []any{r.RecordID, r.PIIID}
}

// Split is one record after separation. PII and Link are nil when the
// layout declares no identifying column.
type Split struct {
	Data DataRow
	PII  *PiiRow
	Link *LinkRow
}

// SplitOptions controls how values are written.
type SplitOptions struct {
	ImportDT string

	// Hasher, if set, replaces stored SSNs with keyed digests.
	Hasher *ssn.Hasher
}

// Separate splits rec according to l. It has no side effects.
func Separate(recordID, piiID int64, rec ir.Record, l ir.Layout, opts SplitOptions) (Split, error) {
	out := Split{
		Data: DataRow{
			RecordID: recordID,
			ValidSSN: ir.Null{},
			ImportDT: opts.ImportDT,
		},
	}

	for _, c := range l.DataColumns() {
		v, err := transform(c, valueOf(rec, c.Source))
		if err != nil {
			return Split{}, fmt.Errorf("dataset %s: column %s: %w", l.Dataset, c.Source, err)
		}
		out.Data.Values = append(out.Data.Values, v)
	}

	if !l.HasPII() {
		return out, nil
	}

	pii := &PiiRow{PIIID: piiID, ImportDT: opts.ImportDT}
	for _, c := range l.PIIColumns() {
		v := valueOf(rec, c.Source)
		if c.PII == ir.RoleSSN {
			var valid bool
			v, valid = separateSSN(v, opts.Hasher)
			out.Data.ValidSSN = boolInt(valid)
		}
		pii.Values = append(pii.Values, v)
	}

	out.PII = pii
	out.Link = &LinkRow{RecordID: recordID, PIIID: piiID}
	return out, nil
}

func valueOf(rec ir.Record, source string) ir.Value {
	if v, ok := rec[source]; ok && v != nil {
		return v
	}
	return ir.Null{}
}

// separateSSN normalizes an SSN and reports its validity before any hashing.
func separateSSN(v ir.Value, h *ssn.Hasher) (ir.Value, bool) {
	if ir.IsNull(v) {
		return ir.Null{}, false
	}
	digits := ssn.Normalize(ir.String(v))
	if digits == "" {
		return ir.Null{}, false
	}
	valid := ssn.Valid(digits)
	if h != nil {
		return ir.Text(h.Hash(digits)), valid
	}
	return ir.Text(digits), valid
}

// transform derives the data-store value of a column.
func transform(c ir.Column, v ir.Value) (ir.Value, error) {
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}

	switch c.Transform {
	case ir.TransformNone:
		return v, nil
	case ir.TransformYear:
		d, ok := v.(ir.Date)
		if !ok || len(d) < 4 {
			return nil, fmt.Errorf("year transform needs a date, got %T", v)
		}
		year, err := strconv.ParseInt(string(d[:4]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("year transform: malformed date")
		}
		return ir.Int(year), nil
	case ir.TransformZip5:
		s := ir.String(v)
		if utf8.RuneCountInString(s) > 5 {
			s = string([]rune(s)[:5])
		}
		return ir.Text(s), nil
	default:
		return nil, fmt.Errorf("unknown transform %q", c.Transform)
	}
}

func boolInt(b bool) ir.Value {
	if b {
		return ir.Int(1)
	}
	return ir.Int(0)
}

// DataTable is the data store table definition of a layout.
func DataTable(l ir.Layout) queryir.CreateTable {
	cols := []queryir.ColumnDef{{Name: ir.ColRecordID, Kind: ir.KindInt, NotNull: true}}
	for _, c := range l.DataColumns() {
		cols = append(cols, queryir.ColumnDef{Name: c.Data, Kind: c.DataKind()})
	}
	cols = append(cols,
		queryir.ColumnDef{Name: ir.ColValidSSN, Kind: ir.KindInt},
		queryir.ColumnDef{Name: ir.ColImportDT, Kind: ir.KindText, NotNull: true},
	)
	return queryir.CreateTable{
		Target:     queryir.Table{Name: l.Dataset},
		Columns:    cols,
		PrimaryKey: []string{ir.ColRecordID},
	}
}

// PIITable is the pii store table definition of a layout.
func PIITable(l ir.Layout) queryir.CreateTable {
	cols := []queryir.ColumnDef{{Name: ir.ColPIIID, Kind: ir.KindInt, NotNull: true}}
	for _, c := range l.PIIColumns() {
		cols = append(cols, queryir.ColumnDef{Name: c.PII, Kind: c.Kind})
	}
	cols = append(cols, queryir.ColumnDef{Name: ir.ColImportDT, Kind: ir.KindText, NotNull: true})
	return queryir.CreateTable{
		Target:     queryir.Table{Name: l.Dataset},
		Columns:    cols,
		PrimaryKey: []string{ir.ColPIIID},
	}
}

// LinkTable is the link store table definition of a layout.
func LinkTable(l ir.Layout) queryir.CreateTable {
	return queryir.CreateTable{
		Target: queryir.Table{Name: l.Dataset},
		Columns: []queryir.ColumnDef{
			{Name: ir.ColRecordID, Kind: ir.KindInt, NotNull: true, Unique: true},
			{Name: ir.ColPIIID, Kind: ir.KindInt, NotNull: true, Unique: true},
		},
	}
}
