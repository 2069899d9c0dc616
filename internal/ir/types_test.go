package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taxLayout() Layout {
	return Layout{
		Dataset: "tax",
		Columns: []Column{
			{Source: "first", Kind: KindText, PII: RoleFirstName},
			{Source: "last", Kind: KindText, PII: RoleLastName},
			{Source: "ssn", Kind: KindText, PII: RoleSSN},
			{Source: "birth_date", Kind: KindDate, PII: RoleDOB, Data: "birth_year", Transform: TransformYear, Format: "01-02-2006"},
			{Source: "job", Kind: KindText, Data: "job"},
			{Source: "agi", Kind: KindNumber, Data: "agi"},
		},
	}
}

func TestLayoutAccessors(t *testing.T) {
	l := taxLayout()

	require.NoError(t, l.Validate())
	assert.True(t, l.HasPII())
	assert.Len(t, l.PIIColumns(), 4)
	assert.Len(t, l.DataColumns(), 3)

	c, ok := l.PIIRole(RoleSSN)
	require.True(t, ok)
	assert.Equal(t, "ssn", c.Source)

	_, ok = l.PIIRole("zip")
	assert.False(t, ok)

	dob, _ := l.PIIRole(RoleDOB)
	assert.Equal(t, KindInt, dob.DataKind())
}

func TestLayoutWithoutPII(t *testing.T) {
	l := Layout{
		Dataset: "rates",
		Columns: []Column{{Source: "rate", Kind: KindNumber, Data: "rate"}},
	}
	require.NoError(t, l.Validate())
	assert.False(t, l.HasPII())
	assert.Empty(t, l.PIIColumns())
}

func TestLayoutValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Layout)
	}{
		{"bad dataset name", func(l *Layout) { l.Dataset = "tax; DROP TABLE x" }},
		{"reserved dataset name", func(l *Layout) { l.Dataset = IdentityTable }},
		{"no columns", func(l *Layout) { l.Columns = nil }},
		{"raw identifying data column", func(l *Layout) { l.Columns[2].Data = "ssn_copy" }},
		{"data name shadows record id", func(l *Layout) { l.Columns[4].Data = ColRecordID }},
		{"data name is an identity role", func(l *Layout) { l.Columns[4].Data = RoleSSN }},
		{"pii name shadows pii id", func(l *Layout) { l.Columns[0].PII = ColPIIID }},
		{"duplicate source", func(l *Layout) { l.Columns[5].Source = "job" }},
		{"duplicate data name", func(l *Layout) { l.Columns[5].Data = "job" }},
		{"same name in both stores", func(l *Layout) { l.Columns[4].Data = "agi2"; l.Columns[0].PII = "agi2" }},
		{"year on text", func(l *Layout) { l.Columns[0].Data = "fy"; l.Columns[0].Transform = TransformYear }},
		{"transform without data", func(l *Layout) { l.Columns[3].Data = "" }},
		{"unknown kind", func(l *Layout) { l.Columns[4].Kind = "blob" }},
		{"quoted identifier", func(l *Layout) { l.Columns[4].Data = `job"` }},
		{"numeric ssn", func(l *Layout) { l.Columns[2].Kind = KindNumber }},
		{"text dob", func(l *Layout) { l.Columns[3].Kind = KindText; l.Columns[3].Transform = TransformNone; l.Columns[3].Data = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := taxLayout()
			tt.mutate(&l)

			err := l.Validate()
			require.Error(t, err)

			var le *LayoutError
			assert.True(t, errors.As(err, &le))
			assert.Equal(t, l.Dataset, le.Dataset)
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("credit_scores"))
	assert.True(t, ValidIdentifier("_x1"))
	assert.False(t, ValidIdentifier("1abc"))
	assert.False(t, ValidIdentifier("a-b"))
	assert.False(t, ValidIdentifier(""))
}
