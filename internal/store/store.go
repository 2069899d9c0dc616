package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/querysql"
)

// ErrTableNotFound is returned when a named table does not exist in a store.
var ErrTableNotFound = errors.New("table not found")

// Journal modes accepted by WithJournal.
const (
	JournalWAL    = "WAL"
	JournalDelete = "DELETE"
)

// Store is one SQLite-backed sirad store.
type Store struct {
	db       *sql.DB
	path     string
	compiler *querysql.SQLCompiler
}

type openConfig struct {
	journal  string
	readOnly bool
}

// Option configures Open.
type Option func(*openConfig)

// WithJournal sets the journal mode. Working stores use WAL; the research
// store uses DELETE so a finished build is one self-contained file.
func WithJournal(mode string) Option {
	return func(c *openConfig) { c.journal = mode }
}

// ReadOnly opens an existing file without write access. The file must exist.
func ReadOnly() Option {
	return func(c *openConfig) { c.readOnly = true }
}

// Open creates or opens a SQLite database at the given path.
//
// The connection is configured with:
//   - the journal mode from WithJournal (WAL by default)
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := openConfig{journal: JournalWAL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.journal != JournalWAL && cfg.journal != JournalDelete {
		return nil, fmt.Errorf("open %s: unsupported journal mode %q", path, cfg.journal)
	}

	dsn := path
	if cfg.readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and ATTACH state is
	// per connection, so keep a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	if !cfg.readOnly {
		pragmas = append([]string{"PRAGMA journal_mode = " + cfg.journal}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &Store{db: db, path: path, compiler: querysql.NewSQLCompiler()}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Pragma returns the current value of a pragma, e.g. "journal_mode".
func (s *Store) Pragma(ctx context.Context, name string) (string, error) {
	if !ir.ValidIdentifier(name) {
		return "", fmt.Errorf("pragma %q: invalid name", name)
	}
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
