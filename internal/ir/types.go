package ir

import (
	"fmt"
	"regexp"
)

// Identifying roles understood by identity resolution. A layout names a PII
// column with one of these to make it take part in blocking and keying.
const (
	RoleSSN       = "ssn"
	RoleFirstName = "first_name"
	RoleLastName  = "last_name"
	RoleDOB       = "dob"
)

// Columns added by the separator.
const (
	ColRecordID = "record_id"
	ColPIIID    = "pii_id"
	ColValidSSN = "valid_ssn"
	ColImportDT = "import_dt"
	ColSiradID  = "sirad_id"
	ColDataset  = "dsn"
	ColKeyKind  = "key_kind"

	ColPIIRows        = "pii_rows"
	ColPIIFingerprint = "pii_fingerprint"
)

// IdentityTable is the name of the pseudonymous id mapping table in the PII store.
const IdentityTable = "sirad_id"

// IdentitySourceTable records, per dataset, the PII table content the
// identity mapping was computed from.
const IdentitySourceTable = "sirad_id_source"

// Transform derives a non-identifying value from an identifying column.
type Transform string

const (
	TransformNone Transform = ""
	TransformYear Transform = "year" // date -> birth year
	TransformZip5 Transform = "zip5" // text -> first five characters
)

// Column classifies one field of a source record.
type Column struct {
	// Source is the field name in the raw file header.
	Source string `json:"source"`

	// Kind is the semantic type used for coercion.
	Kind Kind `json:"kind"`

	// Data is the column name in the Data Store ("" = not written there).
	Data string `json:"data,omitempty"`

	// PII is the column name in the PII Store ("" = not identifying).
	PII string `json:"pii,omitempty"`

	// Format is the Go time layout for KindDate columns.
	Format string `json:"format,omitempty"`

	// Transform applies to the Data side only. Required when a column is
	// both Data and PII.
	Transform Transform `json:"transform,omitempty"`
}

// DataKind returns the kind of the value written to the Data Store.
func (c Column) DataKind() Kind {
	switch c.Transform {
	case TransformYear:
		return KindInt
	case TransformZip5:
		return KindText
	default:
		return c.Kind
	}
}

// Layout is the column classification of one dataset.
type Layout struct {
	Dataset string   `json:"dataset"`
	Columns []Column `json:"columns"`
}

// DataColumns returns the columns written to the Data Store, in layout order.
func (l Layout) DataColumns() []Column {
	var out []Column
	for _, c := range l.Columns {
		if c.Data != "" {
			out = append(out, c)
		}
	}
	return out
}

// PIIColumns returns the columns written to the PII Store, in layout order.
func (l Layout) PIIColumns() []Column {
	var out []Column
	for _, c := range l.Columns {
		if c.PII != "" {
			out = append(out, c)
		}
	}
	return out
}

// HasPII reports whether the dataset declares any identifying attribute.
func (l Layout) HasPII() bool {
	for _, c := range l.Columns {
		if c.PII != "" {
			return true
		}
	}
	return false
}

// PIIRole returns the column carrying the given identifying role.
func (l Layout) PIIRole(role string) (Column, bool) {
	for _, c := range l.Columns {
		if c.PII == role {
			return c, true
		}
	}
	return Column{}, false
}

// Record is one parsed source row keyed by source field name.
type Record map[string]Value

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a table or column name.
func ValidIdentifier(name string) bool {
	return identRE.MatchString(name)
}

var (
	reservedData = map[string]bool{
		ColRecordID: true, ColValidSSN: true, ColImportDT: true, ColSiradID: true,
		RoleSSN: true, RoleFirstName: true, RoleLastName: true, RoleDOB: true,
	}
	reservedPII = map[string]bool{ColPIIID: true, ColImportDT: true}
)

// LayoutError reports a classification that would break store separation.
type LayoutError struct {
	Dataset string
	Column  string
	Message string
}

func (e *LayoutError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("layout %s: column %s: %s", e.Dataset, e.Column, e.Message)
	}
	return fmt.Sprintf("layout %s: %s", e.Dataset, e.Message)
}

// Validate checks the separation rules of a layout:
//   - dataset and output names are SQL identifiers
//   - no column is written raw to both stores
//   - data and pii names never coincide and never shadow separator columns
func (l Layout) Validate() error {
	fail := func(col, format string, args ...any) error {
		return &LayoutError{Dataset: l.Dataset, Column: col, Message: fmt.Sprintf(format, args...)}
	}

	if !ValidIdentifier(l.Dataset) {
		return fail("", "dataset name is not a valid identifier")
	}
	if l.Dataset == IdentityTable {
		return fail("", "dataset name %q is reserved", IdentityTable)
	}
	if len(l.Columns) == 0 {
		return fail("", "no columns declared")
	}

	sources := make(map[string]bool)
	dataNames := make(map[string]bool)
	piiNames := make(map[string]bool)

	for _, c := range l.Columns {
		if c.Source == "" {
			return fail("", "column with empty source name")
		}
		if sources[c.Source] {
			return fail(c.Source, "duplicate source column")
		}
		sources[c.Source] = true

		switch c.Kind {
		case KindText, KindNumber, KindDate:
		default:
			return fail(c.Source, "unsupported kind %q", c.Kind)
		}

		if c.Data != "" && c.PII != "" && c.Transform == TransformNone {
			return fail(c.Source, "identifying column written raw to the data store; declare a transform")
		}
		switch c.Transform {
		case TransformNone:
		case TransformYear:
			if c.Kind != KindDate {
				return fail(c.Source, "transform year requires a date column")
			}
		case TransformZip5:
			if c.Kind != KindText {
				return fail(c.Source, "transform zip5 requires a text column")
			}
		default:
			return fail(c.Source, "unknown transform %q", c.Transform)
		}
		if c.Transform != TransformNone && c.Data == "" {
			return fail(c.Source, "transform declared without a data name")
		}

		if c.Data != "" {
			if !ValidIdentifier(c.Data) {
				return fail(c.Source, "data name %q is not a valid identifier", c.Data)
			}
			if reservedData[c.Data] {
				return fail(c.Source, "data name %q is reserved", c.Data)
			}
			if dataNames[c.Data] {
				return fail(c.Source, "duplicate data name %q", c.Data)
			}
			dataNames[c.Data] = true
		}
		if c.PII != "" {
			switch c.PII {
			case RoleSSN, RoleFirstName, RoleLastName:
				if c.Kind != KindText {
					return fail(c.Source, "pii role %s requires a text column", c.PII)
				}
			case RoleDOB:
				if c.Kind != KindDate {
					return fail(c.Source, "pii role %s requires a date column", c.PII)
				}
			}
			if !ValidIdentifier(c.PII) {
				return fail(c.Source, "pii name %q is not a valid identifier", c.PII)
			}
			if reservedPII[c.PII] {
				return fail(c.Source, "pii name %q is reserved", c.PII)
			}
			if piiNames[c.PII] {
				return fail(c.Source, "duplicate pii name %q", c.PII)
			}
			piiNames[c.PII] = true
		}
	}

	for name := range dataNames {
		if piiNames[name] {
			return fail("", "name %q used in both data and pii stores", name)
		}
	}

	return nil
}
