package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/queryir"
)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T, name string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// taxTable is a small data table definition used across tests.
func taxTable() queryir.CreateTable {
	return queryir.CreateTable{
		Target: queryir.Table{Name: "tax"},
		Columns: []queryir.ColumnDef{
			{Name: "record_id", Kind: ir.KindInt},
			{Name: "agi", Kind: ir.KindNumber},
			{Name: "filed", Kind: ir.KindDate},
		},
		PrimaryKey: []string{"record_id"},
	}
}

func loadTax(t *testing.T, s *Store, rows ...[]any) {
	t.Helper()
	require.NoError(t, s.Replace(context.Background(), taxTable(), rows))
}

// countRows returns the number of rows in a main-schema table.
func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	rows, err := s.Select(context.Background(), queryir.Select{From: queryir.Table{Name: table}, Star: true})
	require.NoError(t, err)
	return len(rows.Values)
}
