package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/sirad/internal/queryir"
	"github.com/roach88/sirad/internal/querysql"
)

// beginner is satisfied by *sql.DB and *sql.Conn.
type beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Replace drops the table named by def, recreates it and inserts rows,
// all in one transaction. Each row holds values in def.Columns order.
//
// A missing table is not an error: the drop is IF EXISTS. If any row fails
// the store keeps whatever table existed before the call.
func (s *Store) Replace(ctx context.Context, def queryir.CreateTable, rows [][]any) error {
	return s.ReplaceAll(ctx, TableData{Def: def, Rows: rows})
}

// TableData is a table definition and the rows to fill it with.
type TableData struct {
	Def  queryir.CreateTable
	Rows [][]any
}

// ReplaceAll replaces every table in one transaction; either all of them
// change or none do.
func (s *Store) ReplaceAll(ctx context.Context, tables ...TableData) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, t := range tables {
			if err := replaceTable(ctx, tx, s.compiler, t.Def, t.Rows); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExecTx executes statements in order inside one transaction.
func (s *Store) ExecTx(ctx context.Context, stmts ...queryir.Statement) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		return execAll(ctx, tx, s.compiler, stmts)
	})
}

// Drop drops a table if it exists.
func (s *Store) Drop(ctx context.Context, table string) error {
	return s.ExecTx(ctx, queryir.DropTable{Target: queryir.Table{Name: table}})
}

// inTx runs fn in a transaction and commits if fn succeeds.
func inTx(ctx context.Context, b beginner, fn func(tx *sql.Tx) error) error {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func execAll(ctx context.Context, q querier, c *querysql.SQLCompiler, stmts []queryir.Statement) error {
	for _, stmt := range stmts {
		sqlText, params, err := c.CompileStatement(stmt)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, sqlText, params...); err != nil {
			return fmt.Errorf("exec %T: %w", stmt, err)
		}
	}
	return nil
}

func replaceTable(ctx context.Context, tx *sql.Tx, c *querysql.SQLCompiler, def queryir.CreateTable, rows [][]any) error {
	name := def.Target.Name

	err := execAll(ctx, tx, c, []queryir.Statement{
		queryir.DropTable{Target: def.Target},
		def,
	})
	if err != nil {
		return fmt.Errorf("replace table %s: %w", name, err)
	}

	cols := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		cols[i] = col.Name
	}
	insertSQL, _, err := c.CompileStatement(queryir.Insert{Target: def.Target, Columns: cols})
	if err != nil {
		return fmt.Errorf("replace table %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("replace table %s: prepare insert: %w", name, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(cols) {
			return fmt.Errorf("replace table %s: row %d has %d values, want %d", name, i, len(row), len(cols))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("replace table %s: insert row %d: %w", name, i, err)
		}
	}
	return nil
}
