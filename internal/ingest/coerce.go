package ingest

import (
	"fmt"

	"github.com/roach88/sirad/internal/ir"
)

// RowError describes a row excluded from loading.
// The message never contains field values.
type RowError struct {
	Line   int
	Field  string
	Reason string
	Err    error
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: field %s: %s", e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Binder maps header positions to layout columns.
type Binder struct {
	layout ir.Layout
	width  int
	index  []int
}

// Bind checks that every layout column appears in header.
// Header columns the layout does not mention are ignored.
func Bind(l ir.Layout, header []string) (*Binder, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; dup {
			return nil, fmt.Errorf("dataset %s: duplicate header column %q", l.Dataset, h)
		}
		pos[h] = i
	}

	index := make([]int, len(l.Columns))
	for i, c := range l.Columns {
		p, ok := pos[c.Source]
		if !ok {
			return nil, fmt.Errorf("dataset %s: header has no column %q", l.Dataset, c.Source)
		}
		index[i] = p
	}
	return &Binder{layout: l, width: len(header), index: index}, nil
}

// Coerce converts a raw row into a record keyed by source name.
// Returns a *RowError when the row has the wrong width or a value does not
// parse as its column kind.
func (b *Binder) Coerce(raw RawRow) (ir.Record, error) {
	if len(raw.Values) != b.width {
		return nil, &RowError{
			Line:   raw.Line,
			Reason: fmt.Sprintf("has %d fields, want %d", len(raw.Values), b.width),
		}
	}

	rec := make(ir.Record, len(b.layout.Columns))
	for i, c := range b.layout.Columns {
		v, err := ir.ParseValue(c.Kind, ir.NormalizeText(raw.Values[b.index[i]]), c.Format)
		if err != nil {
			return nil, &RowError{
				Line:   raw.Line,
				Field:  c.Source,
				Reason: fmt.Sprintf("not a valid %s", c.Kind),
				Err:    err,
			}
		}
		rec[c.Source] = v
	}
	return rec, nil
}
