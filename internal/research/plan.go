package research

import (
	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
)

// Schemas the source stores are attached under.
const (
	SchemaData = "data"
	SchemaPII  = "pii"
	SchemaLink = "link"
)

// Source tells how a research table was built.
type Source string

const (
	SourceJoin Source = "join"
	SourceCopy Source = "copy"
)

// CopyPlan selects every row of a dataset's data table unchanged.
func CopyPlan(dataset string) queryir.Query {
	return queryir.Select{
		From: queryir.Table{Schema: SchemaData, Name: dataset},
		Star: true,
	}
}

// JoinPlan projects sirad_id and dataColumns (minus record_id) for every
// mapped row of dataset, ordered by sirad_id then record_id.
func JoinPlan(dataset string, dataColumns []string) queryir.Query {
	projected := make([]queryir.Column, 0, len(dataColumns))
	for _, c := range dataColumns {
		if c == ir.ColRecordID {
			continue
		}
		projected = append(projected, queryir.Col("d", c))
	}

	ids := queryir.Select{
		From:    queryir.Table{Schema: SchemaPII, Name: ir.IdentityTable},
		Alias:   "r",
		Columns: []queryir.Column{queryir.Col("r", ir.ColSiradID)},
		Filter:  queryir.Equals{Field: queryir.Col("r", ir.ColDataset), Value: ir.Text(dataset)},
		OrderBy: []queryir.Column{queryir.Col("r", ir.ColSiradID)},
	}
	pii := queryir.Select{From: queryir.Table{Schema: SchemaPII, Name: dataset}, Alias: "p"}
	link := queryir.Select{From: queryir.Table{Schema: SchemaLink, Name: dataset}, Alias: "l"}
	data := queryir.Select{
		From:    queryir.Table{Schema: SchemaData, Name: dataset},
		Alias:   "d",
		Columns: projected,
		OrderBy: []queryir.Column{queryir.Col("d", ir.ColRecordID)},
	}

	return queryir.Join{
		Left: queryir.Join{
			Left: queryir.Join{
				Left:  ids,
				Right: pii,
				On:    queryir.ColumnEquals{Left: queryir.Col("p", ir.ColPIIID), Right: queryir.Col("r", ir.ColPIIID)},
			},
			Right: link,
			On:    queryir.ColumnEquals{Left: queryir.Col("l", ir.ColPIIID), Right: queryir.Col("p", ir.ColPIIID)},
		},
		Right: data,
		On:    queryir.ColumnEquals{Left: queryir.Col("d", ir.ColRecordID), Right: queryir.Col("l", ir.ColRecordID)},
	}
}
