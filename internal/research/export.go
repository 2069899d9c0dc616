package research

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/store"
)

// ExportDelimiter separates fields in exported research files.
const ExportDelimiter = '|'

// Export writes every table of the research store of version as a
// delimited text file <table>.txt in outDir, header first, rows in store
// order. It returns the written paths in table order.
func Export(ctx context.Context, researchDir, version, outDir string) ([]string, error) {
	if !ValidVersion(version) {
		return nil, fmt.Errorf("export: invalid version %q", version)
	}
	path := StorePath(researchDir, version)
	if _, err := os.Stat(path); err != nil {
		return nil, &ir.ConfigError{
			Code:    ir.ErrCodeMissingStore,
			Table:   path,
			Message: fmt.Sprintf("research store for version %s not found; run research first", version),
		}
	}

	rs, err := store.Open(path, store.ReadOnly())
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer rs.Close()

	tables, err := rs.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output dir: %w", err)
	}

	var written []string
	for _, table := range tables {
		rows, err := rs.Select(ctx, queryir.Select{From: queryir.Table{Name: table}, Star: true})
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", table, err)
		}
		out := filepath.Join(outDir, table+".txt")
		if err := writeDelimited(out, rows); err != nil {
			return nil, fmt.Errorf("export %s: %w", table, err)
		}
		written = append(written, out)
	}
	return written, nil
}

func writeDelimited(path string, rows store.Rows) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	w.Comma = ExportDelimiter
	if err := w.Write(rows.Columns); err != nil {
		return err
	}
	record := make([]string, len(rows.Columns))
	for _, row := range rows.Values {
		for i, v := range row {
			record[i] = cell(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// cell renders a driver value; NULL is the empty field.
func cell(v any) string {
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
