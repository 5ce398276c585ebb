package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTable is returned by FromRow for tables no record type owns.
var ErrUnknownTable = errors.New("unknown record table")

// sqliteTimeLayouts are the layouts mattn/go-sqlite3 writes timestamps with.
var sqliteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// FromRow rebuilds the record stored as row in table. Row values are the
// column values as scanned from a SQL store: JSON columns may arrive as text
// or decoded values, timestamps as time.Time or text.
func FromRow(table string, row map[string]any) (Record, error) {
	var rec Record
	switch {
	case table == DoclingTable:
		rec = &Docling{}
	case strings.HasSuffix(table, "_records"):
		rec = &ChatCompletion{ClientName: strings.TrimSuffix(table, "_records")}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	doc := make(map[string]any, len(row))
	for _, col := range rec.Columns() {
		v, ok := row[col.Name]
		if !ok || v == nil || col.Kind == KindBlob {
			continue
		}
		norm, err := normalizeValue(col, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		doc[col.Name] = norm
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding row: %w", err)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decoding row into %s: %w", table, err)
	}

	if d, ok := rec.(*Docling); ok {
		if img, ok := row["image"].([]byte); ok {
			d.Image = img
		}
	}
	return rec, nil
}

func normalizeValue(col Column, v any) (any, error) {
	switch col.Kind {
	case KindJSON, KindStringList:
		switch t := v.(type) {
		case string:
			return json.RawMessage(t), nil
		case []byte:
			return json.RawMessage(t), nil
		default:
			return v, nil
		}
	case KindTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			for _, layout := range sqliteTimeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed.UTC(), nil
				}
			}
			return nil, fmt.Errorf("unrecognized timestamp %q", t)
		}
		return nil, fmt.Errorf("unsupported timestamp value %T", v)
	case KindString, KindText:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return v, nil
	default:
		return v, nil
	}
}
