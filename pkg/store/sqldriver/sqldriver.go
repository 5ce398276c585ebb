// Package sqldriver implements the record store shared by the SQL backends.
// Tables are created lazily from record column metadata and written with
// squirrel-built statements.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

// Row is one stored record keyed by column name.
type Row map[string]any

// Driver persists records to a database/sql handle.
type Driver struct {
	DB *sql.DB

	dialect Dialect
	builder sq.StatementBuilderType
	logger  *slog.Logger

	mu      sync.Mutex
	created map[string]bool
	closed  bool
}

// New wraps db. The caller hands ownership of db to the driver.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		DB:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		logger:  logger.With("store", dialect.Name),
		created: make(map[string]bool),
	}
}

// Add inserts rec into its table, creating the table on first use. A record
// whose id already exists is left untouched.
func (d *Driver) Add(ctx context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}
	table := rec.TableName()
	if !identifier.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if err := d.ensureTable(ctx, table, rec.Columns()); err != nil {
		return err
	}

	values := rec.Values()
	columns := rec.Columns()
	names := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, col := range columns {
		arg, err := encodeValue(col, values[col.Name])
		if err != nil {
			return fmt.Errorf("encoding column %s: %w", col.Name, err)
		}
		names = append(names, quote(col.Name))
		args = append(args, arg)
	}

	query, qargs, err := d.builder.Insert(quote(table)).
		Columns(names...).
		Values(args...).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := d.DB.ExecContext(ctx, query, qargs...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}

	d.logger.Debug("record stored", "table", table, "id", rec.RecordID())
	return nil
}

func (d *Driver) ensureTable(ctx context.Context, table string, columns []record.Column) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	if d.created[table] {
		return nil
	}

	if _, err := d.DB.ExecContext(ctx, CreateTableSQL(d.dialect, table, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	d.created[table] = true
	d.logger.Debug("table ready", "table", table)
	return nil
}

// CreateTableSQL renders the DDL for a record table.
func CreateTableSQL(dialect Dialect, table string, columns []record.Column) string {
	defs := lo.Map(columns, func(col record.Column, _ int) string {
		def := quote(col.Name) + " " + dialect.Types[col.Kind]
		if col.Name == "id" {
			def += " PRIMARY KEY"
		}
		return def
	})
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
}

// Tables returns the names of the record tables in the database.
func (d *Driver) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.DB.QueryContext(ctx, d.dialect.TablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if strings.HasSuffix(name, "_records") {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

// List returns up to limit rows of table, newest first. A limit of zero
// returns every row.
func (d *Driver) List(ctx context.Context, table string, limit uint64) ([]Row, error) {
	return d.selectRows(ctx, table, nil, limit)
}

// Unsynced returns up to limit rows of table that have not been marked synced.
func (d *Driver) Unsynced(ctx context.Context, table string, limit uint64) ([]Row, error) {
	return d.selectRows(ctx, table, sq.Eq{"synced_at": nil}, limit)
}

// MarkSynced stamps synced_at on the given ids and returns the rows affected.
func (d *Driver) MarkSynced(ctx context.Context, table string, ids []string, at time.Time) (int64, error) {
	if !identifier.MatchString(table) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := d.builder.Update(quote(table)).
		Set("synced_at", at.UTC()).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	res, err := d.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark synced in %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (d *Driver) selectRows(ctx context.Context, table string, where sq.Sqlizer, limit uint64) ([]Row, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	q := d.builder.Select("*").From(quote(table)).OrderBy(d.dialect.InsertionOrder)
	if where != nil {
		q = q.Where(where)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close closes the database handle.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.DB.Close()
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok && col != "image" && utf8.Valid(b) {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// encodeValue converts a record value to a driver argument for its column kind.
// Empty values become NULL.
func encodeValue(col record.Column, v any) (any, error) {
	switch col.Kind {
	case record.KindJSON, record.KindStringList:
		s, err := record.EncodeJSON(v)
		if err != nil || s == nil {
			return nil, err
		}
		return *s, nil
	case record.KindTimestamp:
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return nil, nil
			}
			return t.UTC(), nil
		case *time.Time:
			if t == nil {
				return nil, nil
			}
			return t.UTC(), nil
		}
		return nil, nil
	case record.KindInt:
		return v, nil
	default:
		if record.IsEmpty(v) {
			return nil, nil
		}
		return v, nil
	}
}

func quote(name string) string {
	return `"` + name + `"`
}
