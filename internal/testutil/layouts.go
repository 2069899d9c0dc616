package testutil

import "github.com/roach88/sirad/internal/ir"

// TaxLayout matches testdata/sample/layouts/tax.cue: SSN, names, a date of
// birth kept on the data side as a birth year, and a zip kept as zip5.
func TaxLayout() ir.Layout {
	return ir.Layout{
		Dataset: "tax",
		Columns: []ir.Column{
			{Source: "ssn", Kind: ir.KindText, PII: ir.RoleSSN},
			{Source: "first_name", Kind: ir.KindText, PII: ir.RoleFirstName},
			{Source: "last_name", Kind: ir.KindText, PII: ir.RoleLastName},
			{Source: "dob", Kind: ir.KindDate, Format: "01/02/2006", PII: ir.RoleDOB, Data: "birth_year", Transform: ir.TransformYear},
			{Source: "zip", Kind: ir.KindText, PII: "zip", Data: "zip5", Transform: ir.TransformZip5},
			{Source: "tax_year", Kind: ir.KindNumber, Data: "tax_year"},
			{Source: "agi", Kind: ir.KindNumber, Data: "agi"},
		},
	}
}

// TaxHeader is the raw header of a tax file.
var TaxHeader = []string{"ssn", "first_name", "last_name", "dob", "zip", "tax_year", "agi"}

// CreditLayout matches testdata/sample/layouts/credit_scores.cue. It has no
// SSN column.
func CreditLayout() ir.Layout {
	return ir.Layout{
		Dataset: "credit_scores",
		Columns: []ir.Column{
			{Source: "first_name", Kind: ir.KindText, PII: ir.RoleFirstName},
			{Source: "last_name", Kind: ir.KindText, PII: ir.RoleLastName},
			{Source: "dob", Kind: ir.KindDate, PII: ir.RoleDOB},
			{Source: "score", Kind: ir.KindNumber, Data: "credit_score"},
		},
	}
}

// CreditHeader is the raw header of a credit_scores file.
var CreditHeader = []string{"first_name", "last_name", "dob", "score"}

// WagesLayout matches testdata/sample/layouts/wages.cue. It declares no
// identifying columns.
func WagesLayout() ir.Layout {
	return ir.Layout{
		Dataset: "wages",
		Columns: []ir.Column{
			{Source: "year", Kind: ir.KindNumber, Data: "year"},
			{Source: "industry", Kind: ir.KindText, Data: "industry"},
			{Source: "avg_wage", Kind: ir.KindNumber, Data: "avg_wage"},
		},
	}
}

// WagesHeader is the raw header of a wages file.
var WagesHeader = []string{"year", "industry", "avg_wage"}
