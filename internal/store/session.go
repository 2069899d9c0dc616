package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/querysql"
)

// Session pins one connection of a store so other stores can be attached
// to it. The owning Store is unusable until the session is closed.
type Session struct {
	conn     *sql.Conn
	compiler *querysql.SQLCompiler
	attached []string
}

// Session opens a session on the store's connection.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &Session{conn: conn, compiler: s.compiler}, nil
}

// Attach attaches the SQLite file at path under schema.
// The path is bound as a parameter; schema must be a valid identifier.
func (ss *Session) Attach(ctx context.Context, schema, path string) error {
	if !ir.ValidIdentifier(schema) {
		return fmt.Errorf("attach: invalid schema name %q", schema)
	}
	_, err := ss.conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+querysql.QuoteIdent(schema), path)
	if err != nil {
		return fmt.Errorf("attach %s: %w", schema, err)
	}
	ss.attached = append(ss.attached, schema)
	return nil
}

// Attached returns the attached schemas in attach order.
func (ss *Session) Attached() []string {
	return append([]string(nil), ss.attached...)
}

// Select runs a query on the session connection and reads every row.
func (ss *Session) Select(ctx context.Context, q queryir.Query) (Rows, error) {
	return selectRows(ctx, ss.conn, ss.compiler, q)
}

// Tables lists the tables of schema ("" for the session's own store).
func (ss *Session) Tables(ctx context.Context, schema string) ([]string, error) {
	return listTables(ctx, ss.conn, schema)
}

// HasTable reports whether schema holds the named table.
func (ss *Session) HasTable(ctx context.Context, schema, name string) (bool, error) {
	return hasTable(ctx, ss.conn, schema, name)
}

// Columns returns the column names of schema.table in declaration order.
func (ss *Session) Columns(ctx context.Context, schema, table string) ([]string, error) {
	return tableColumns(ctx, ss.conn, schema, table)
}

// ExecTx executes statements in order inside one transaction.
func (ss *Session) ExecTx(ctx context.Context, stmts ...queryir.Statement) error {
	return inTx(ctx, ss.conn, func(tx *sql.Tx) error {
		return execAll(ctx, tx, ss.compiler, stmts)
	})
}

// Close detaches every attached schema in reverse order and releases the
// connection back to the store.
func (ss *Session) Close() error {
	if ss.conn == nil {
		return nil
	}

	var errs []error
	for i := len(ss.attached) - 1; i >= 0; i-- {
		schema := ss.attached[i]
		if _, err := ss.conn.ExecContext(context.Background(), "DETACH DATABASE "+querysql.QuoteIdent(schema)); err != nil {
			errs = append(errs, fmt.Errorf("detach %s: %w", schema, err))
		}
	}
	ss.attached = nil

	if err := ss.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	ss.conn = nil
	return errors.Join(errs...)
}
