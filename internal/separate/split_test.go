package separate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/ssn"
	"github.com/roach88/sirad/internal/testutil"
)

func taxRecord(ssnValue string) ir.Record {
	return ir.Record{
		"ssn":        ir.Text(ssnValue),
		"first_name": ir.Text("Ada"),
		"last_name":  ir.Text("Lovelace"),
		"dob":        ir.Date("1980-01-31"),
		"zip":        ir.Text("02903-1234"),
		"tax_year":   ir.Number(2019),
		"agi":        ir.Number(52000),
	}
}

func TestSeparate_Tax(t *testing.T) {
	split, err := Separate(3, 9, taxRecord("123-45-6789"), testutil.TaxLayout(), SplitOptions{ImportDT: "2024-01-01T00:00:00Z"})
	require.NoError(t, err)

	assert.Equal(t, DataRow{
		RecordID: 3,
		Values:   []ir.Value{ir.Int(1980), ir.Text("02903"), ir.Number(2019), ir.Number(52000)},
		ValidSSN: ir.Int(1),
		ImportDT: "2024-01-01T00:00:00Z",
	}, split.Data)

	require.NotNil(t, split.PII)
	assert.Equal(t, int64(9), split.PII.PIIID)
	assert.Equal(t, []ir.Value{
		ir.Text("123456789"), ir.Text("Ada"), ir.Text("Lovelace"), ir.Date("1980-01-31"), ir.Text("02903-1234"),
	}, split.PII.Values)

	assert.Equal(t, &LinkRow{RecordID: 3, PIIID: 9}, split.Link)

	assert.Equal(t,
		[]any{int64(3), int64(1980), "02903", 2019.0, 52000.0, int64(1), "2024-01-01T00:00:00Z"},
		split.Data.Params())
	assert.Equal(t, []any{int64(3), int64(9)}, split.Link.Params())
}

func TestSeparate_InvalidAndMissingSSN(t *testing.T) {
	l := testutil.TaxLayout()

	split, err := Separate(1, 1, taxRecord("999-88-7777"), l, SplitOptions{})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(0), split.Data.ValidSSN)
	// Invalid SSNs are still stored for resolution.
	assert.Equal(t, ir.Text("999887777"), split.PII.Values[0])

	rec := taxRecord("")
	rec["ssn"] = ir.Null{}
	split, err = Separate(2, 2, rec, l, SplitOptions{})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(0), split.Data.ValidSSN)
	assert.Equal(t, ir.Null{}, split.PII.Values[0])
}

func TestSeparate_HashedSSN(t *testing.T) {
	h, err := ssn.NewHasher("pii-secret")
	require.NoError(t, err)

	split, err := Separate(1, 1, taxRecord("123-45-6789"), testutil.TaxLayout(), SplitOptions{Hasher: h})
	require.NoError(t, err)

	assert.Equal(t, ir.Int(1), split.Data.ValidSSN)
	assert.Equal(t, ir.Text(h.Hash("123456789")), split.PII.Values[0])
}

func TestSeparate_NoPII(t *testing.T) {
	rec := ir.Record{"year": ir.Number(2019), "industry": ir.Text("retail"), "avg_wage": ir.Null{}}

	split, err := Separate(1, 0, rec, testutil.WagesLayout(), SplitOptions{})
	require.NoError(t, err)

	assert.Nil(t, split.PII)
	assert.Nil(t, split.Link)
	assert.Equal(t, ir.Null{}, split.Data.ValidSSN)
	assert.Equal(t, []ir.Value{ir.Number(2019), ir.Text("retail"), ir.Null{}}, split.Data.Values)
}

func TestSeparate_NullTransformInput(t *testing.T) {
	rec := taxRecord("123456789")
	rec["dob"] = ir.Null{}
	delete(rec, "zip")

	split, err := Separate(1, 1, rec, testutil.TaxLayout(), SplitOptions{})
	require.NoError(t, err)
	assert.Equal(t, ir.Null{}, split.Data.Values[0])
	assert.Equal(t, ir.Null{}, split.Data.Values[1])
}

func TestSeparate_NeverWritesIdentifyingValuesToData(t *testing.T) {
	l := testutil.TaxLayout()
	split, err := Separate(1, 1, taxRecord("123-45-6789"), l, SplitOptions{})
	require.NoError(t, err)

	pii := make(map[any]bool)
	for _, v := range split.PII.Values {
		pii[v.Param()] = true
	}
	for _, v := range split.Data.Values {
		assert.False(t, pii[v.Param()], "data value %v also stored as pii", v)
	}
}

func TestTableDefinitions(t *testing.T) {
	l := testutil.TaxLayout()

	data := DataTable(l)
	var dataCols []string
	for _, c := range data.Columns {
		dataCols = append(dataCols, c.Name)
	}
	assert.Equal(t, []string{"record_id", "birth_year", "zip5", "tax_year", "agi", "valid_ssn", "import_dt"}, dataCols)
	assert.Equal(t, []string{"record_id"}, data.PrimaryKey)

	pii := PIITable(l)
	var piiCols []string
	for _, c := range pii.Columns {
		piiCols = append(piiCols, c.Name)
	}
	assert.Equal(t, []string{"pii_id", "ssn", "first_name", "last_name", "dob", "zip", "import_dt"}, piiCols)

	link := LinkTable(l)
	require.Len(t, link.Columns, 2)
	assert.True(t, link.Columns[0].Unique)
	assert.True(t, link.Columns[1].Unique)
}
