// Package ingest reads delimited raw files and coerces their rows into
// typed records according to a dataset layout.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultDelimiter separates fields in raw files unless configured otherwise.
const DefaultDelimiter = '|'

// RawRow is one data line of a raw file.
type RawRow struct {
	// Line is the 1-based line number in the source (the header is line 1).
	Line   int
	Values []string
}

// RowSource yields the rows of one raw file. Next returns io.EOF after the
// last row.
type RowSource interface {
	Header() []string
	Next() (RawRow, error)
}

// Reader is a RowSource over delimited text with a header line.
type Reader struct {
	r      *csv.Reader
	header []string
}

// NewReader reads the header line and prepares to read rows.
func NewReader(r io.Reader, delimiter rune) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1 // width is checked per row by the binder

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		out[i] = strings.TrimSpace(h)
	}
	return &Reader{r: cr, header: out}, nil
}

// Header returns the trimmed header names.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next row or io.EOF.
// A line that cannot be split into fields yields a *RowError; reading may
// continue with the following line.
func (r *Reader) Next() (RawRow, error) {
	values, err := r.r.Read()
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return RawRow{}, &RowError{Line: parseErr.StartLine, Reason: "malformed line", Err: err}
	}
	if err != nil {
		return RawRow{}, err
	}
	line, _ := r.r.FieldPos(0)
	return RawRow{Line: line, Values: values}, nil
}

// FileSource is a Reader over an open file.
type FileSource struct {
	*Reader
	f *os.File
}

// OpenFile opens a raw file for reading.
func OpenFile(path string, delimiter rune) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw file: %w", err)
	}
	r, err := NewReader(f, delimiter)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileSource{Reader: r, f: f}, nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// SliceSource is an in-memory RowSource.
type SliceSource struct {
	header []string
	rows   [][]string
	next   int
}

// NewSliceSource returns a source yielding rows after header. Rows are
// numbered as if they followed the header line in a file.
func NewSliceSource(header []string, rows ...[]string) *SliceSource {
	return &SliceSource{header: header, rows: rows}
}

// Header returns the header names.
func (s *SliceSource) Header() []string {
	return s.header
}

// Next returns the next row or io.EOF.
func (s *SliceSource) Next() (RawRow, error) {
	if s.next >= len(s.rows) {
		return RawRow{}, io.EOF
	}
	row := RawRow{Line: s.next + 2, Values: s.rows[s.next]}
	s.next++
	return row, nil
}
