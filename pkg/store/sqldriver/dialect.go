package sqldriver

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/cfahlgren1/observers/pkg/record"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name string

	Placeholder sq.PlaceholderFormat

	// Types maps column kinds to column types.
	Types map[record.Kind]string

	// TablesQuery lists the tables of the current database.
	TablesQuery string

	// InsertionOrder is the ORDER BY expression returning newest rows first.
	InsertionOrder string
}

// SQLite stores JSON as TEXT and orders by rowid.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: sq.Question,
	Types: map[record.Kind]string{
		record.KindString:     "TEXT",
		record.KindText:       "TEXT",
		record.KindInt:        "INTEGER",
		record.KindTimestamp:  "TIMESTAMP",
		record.KindJSON:       "TEXT",
		record.KindStringList: "TEXT",
		record.KindBlob:       "BLOB",
	},
	TablesQuery:    "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name",
	InsertionOrder: "rowid DESC",
}

// Postgres stores JSON as JSONB.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: sq.Dollar,
	Types: map[record.Kind]string{
		record.KindString:     "TEXT",
		record.KindText:       "TEXT",
		record.KindInt:        "BIGINT",
		record.KindTimestamp:  "TIMESTAMPTZ",
		record.KindJSON:       "JSONB",
		record.KindStringList: "JSONB",
		record.KindBlob:       "BYTEA",
	},
	TablesQuery: "SELECT table_name FROM information_schema.tables " +
		"WHERE table_schema = current_schema() ORDER BY table_name",
	InsertionOrder: "ctid DESC",
}
