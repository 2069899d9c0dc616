package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
	assert.Equal(t, path, s.Path())
}

func TestOpen_ReopenKeepsTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	s1, err := Open(path)
	require.NoError(t, err)
	loadTax(t, s1, []any{int64(1), 52000.0, "2019-04-15"})
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, 1, countRows(t, s2, "tax"))
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/data.db")
	assert.Error(t, err)
}

func TestOpen_UnsupportedJournal(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), WithJournal("MEMORY"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported journal mode "MEMORY"`)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    []Option
		journal string
	}{
		{"working store", nil, "wal"},
		{"research store", []Option{WithJournal(JournalDelete)}, "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(filepath.Join(t.TempDir(), "s.db"), tt.opts...)
			require.NoError(t, err)
			defer s.Close()

			journal, err := s.Pragma(ctx, "journal_mode")
			require.NoError(t, err)
			assert.Equal(t, tt.journal, journal)

			// NORMAL = 1
			sync, err := s.Pragma(ctx, "synchronous")
			require.NoError(t, err)
			assert.Equal(t, "1", sync)

			timeout, err := s.Pragma(ctx, "busy_timeout")
			require.NoError(t, err)
			assert.Equal(t, "5000", timeout)
		})
	}
}

func TestPragma_RejectsBadName(t *testing.T) {
	s := createTestStore(t, "data")
	_, err := s.Pragma(context.Background(), "journal_mode; DROP TABLE tax")
	assert.Error(t, err)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "research_v1.db")

	rw, err := Open(path, WithJournal(JournalDelete))
	require.NoError(t, err)
	loadTax(t, rw, []any{int64(1), 52000.0, "2019-04-15"})
	require.NoError(t, rw.Close())

	ro, err := Open(path, ReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	tables, err := ro.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tax"}, tables)

	assert.Error(t, ro.Drop(ctx, "tax"))
}

func TestReadOnly_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research_v9.db")

	_, err := Open(path, ReadOnly())
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
