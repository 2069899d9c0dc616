package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/querysql"
)

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Rows is a fully materialized result set.
// Values holds driver values: nil, int64, float64, string or []byte.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Select runs a query and reads every row.
func (s *Store) Select(ctx context.Context, q queryir.Query) (Rows, error) {
	return selectRows(ctx, s.db, s.compiler, q)
}

// Tables lists the store's tables in name order.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return listTables(ctx, s.db, "")
}

// HasTable reports whether the store holds the named table.
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	return hasTable(ctx, s.db, "", name)
}

// Columns returns the table's column names in declaration order.
// Returns ErrTableNotFound if the table does not exist.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	return tableColumns(ctx, s.db, "", table)
}

// Fingerprint hashes the result's header and rows independent of row order.
func (r Rows) Fingerprint() (string, error) {
	header := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	h, err := ir.MarshalRow(header)
	if err != nil {
		return "", fmt.Errorf("fingerprint header: %w", err)
	}

	encoded := make([][]byte, len(r.Values))
	for i, row := range r.Values {
		b, err := ir.MarshalRow(row)
		if err != nil {
			return "", fmt.Errorf("fingerprint row %d: %w", i+1, err)
		}
		encoded[i] = b
	}
	return ir.Fingerprint(h, encoded), nil
}

func selectRows(ctx context.Context, q querier, c *querysql.SQLCompiler, query queryir.Query) (Rows, error) {
	sqlText, params, err := c.Compile(query)
	if err != nil {
		return Rows{}, fmt.Errorf("select: %w", err)
	}

	rows, err := q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return Rows{}, fmt.Errorf("select: query: %w", err)
	}
	defer rows.Close()

	return scanAll(rows)
}

// scanAll reads every remaining row into memory.
func scanAll(rows *sql.Rows) (Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Rows{}, fmt.Errorf("read columns: %w", err)
	}

	out := Rows{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, fmt.Errorf("scan row: %w", err)
		}
		out.Values = append(out.Values, vals)
	}
	if err := rows.Err(); err != nil {
		return Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// schemaPrefix returns the quoted schema qualifier for catalog queries.
func schemaPrefix(schema string) (string, error) {
	if schema == "" {
		return "", nil
	}
	if !ir.ValidIdentifier(schema) {
		return "", fmt.Errorf("invalid schema name %q", schema)
	}
	return querysql.QuoteIdent(schema) + ".", nil
}

func listTables(ctx context.Context, q querier, schema string) ([]string, error) {
	prefix, err := schemaPrefix(schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT name FROM "+prefix+"sqlite_master "+
			"WHERE type = 'table' AND name NOT LIKE 'sqlite_%' "+
			"ORDER BY name COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func hasTable(ctx context.Context, q querier, schema, name string) (bool, error) {
	prefix, err := schemaPrefix(schema)
	if err != nil {
		return false, fmt.Errorf("has table: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT 1 FROM "+prefix+"sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, fmt.Errorf("has table %s: %w", name, err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("has table %s: %w", name, err)
	}
	return found, nil
}

func tableColumns(ctx context.Context, q querier, schema, table string) ([]string, error) {
	prefix, err := schemaPrefix(schema)
	if err != nil {
		return nil, fmt.Errorf("table columns: %w", err)
	}
	if !ir.ValidIdentifier(table) {
		return nil, fmt.Errorf("table columns: invalid table name %q", table)
	}

	rows, err := q.QueryContext(ctx, "PRAGMA "+prefix+"table_info("+querysql.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("table columns of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("table columns of %s: scan: %w", table, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table columns of %s: %w", table, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("table columns of %s: %w", table, ErrTableNotFound)
	}
	return names, nil
}
