// Package sqlite provides the local file store, the default backend for
// observers that are given no store.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cfahlgren1/observers/pkg/store/sqldriver"
)

// DefaultPath is the database file used when no path is given.
const DefaultPath = "store.db"

// Store implements store.Store on a SQLite database file.
type Store struct {
	*sqldriver.Driver

	Path string
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Connect opens (or creates) the database at path. An empty path uses
// DefaultPath; ":memory:" opens a private in-memory database.
func Connect(path string, opts ...Option) (*Store, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if path == "" {
		path = DefaultPath
	}

	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	return &Store{
		Driver: sqldriver.New(db, sqldriver.SQLite, o.logger),
		Path:   path,
	}, nil
}
