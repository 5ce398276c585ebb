// Package local opens the queryable record store selected by configuration:
// the SQLite file store or PostgreSQL.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cfahlgren1/observers/pkg/store/postgres"
	"github.com/cfahlgren1/observers/pkg/store/sqldriver"
	"github.com/cfahlgren1/observers/pkg/store/sqlite"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Config selects and configures the local store.
type Config struct {
	// Backend is "sqlite" (the default) or "postgres".
	Backend string

	SQLitePath  string
	PostgresDSN string

	Logger *slog.Logger
}

// Open connects to the configured backend. The returned driver implements
// store.Store and the row queries used by the CLI.
func Open(ctx context.Context, c Config) (*sqldriver.Driver, error) {
	switch c.Backend {
	case "", BackendSQLite:
		s, err := sqlite.Connect(c.SQLitePath, sqlite.WithLogger(c.Logger))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s.Driver, nil

	case BackendPostgres:
		if c.PostgresDSN == "" {
			return nil, errors.New("postgres backend requires a connection string")
		}
		s, err := postgres.Connect(ctx, c.PostgresDSN, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s.Driver, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
}
