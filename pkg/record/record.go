// Package record defines the observation records built for every intercepted
// call and the column metadata stores use to persist them.
package record

import (
	"encoding/json"
	"time"
)

// Kind is the storage kind of a record column.
type Kind string

const (
	KindString     Kind = "string"
	KindText       Kind = "text"
	KindInt        Kind = "int"
	KindTimestamp  Kind = "timestamp"
	KindJSON       Kind = "json"
	KindStringList Kind = "string_list"
	KindBlob       Kind = "blob"
)

// Column describes one persisted field of a record.
type Column struct {
	Name string
	Kind Kind
}

// Record is an immutable observation handed to a store.
type Record interface {
	// RecordID is the primary key of the record within its table.
	RecordID() string

	// TableName is the table, dataset or topic suffix the record belongs to.
	TableName() string

	// Columns returns the ordered column metadata. The last column is
	// always synced_at.
	Columns() []Column

	// JSONFields names the columns that hub-style stores encode as JSON strings.
	JSONFields() []string

	// ImageFields names the columns that hold PNG bytes.
	ImageFields() []string

	// Values maps every column name to its Go value.
	Values() map[string]any

	// Annotation describes the dataset layout on the annotation platform.
	Annotation() Annotation

	// EventFields names the columns emitted as span attributes by trace sinks.
	EventFields() []string
}

// Meta is stamped on every record an observer builds.
type Meta struct {
	Tags       []string
	Properties map[string]any
}

// Base holds the fields shared by every record type.
type Base struct {
	ID          string          `json:"id"`
	Tags        []string        `json:"tags"`
	Properties  map[string]any  `json:"properties"`
	Error       string          `json:"error,omitempty"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
	SyncedAt    *time.Time      `json:"synced_at"`
}

// RecordID implements Record.
func (b *Base) RecordID() string { return b.ID }

// Apply stamps tags and properties from meta onto the record. Properties
// already present on the record win.
func (b *Base) Apply(meta Meta) {
	if len(meta.Tags) > 0 {
		b.Tags = append(append([]string{}, meta.Tags...), b.Tags...)
	}
	if len(meta.Properties) == 0 {
		return
	}
	props := make(map[string]any, len(meta.Properties)+len(b.Properties))
	for k, v := range meta.Properties {
		props[k] = v
	}
	for k, v := range b.Properties {
		props[k] = v
	}
	b.Properties = props
}

func (b *Base) baseValues(values map[string]any) map[string]any {
	values["id"] = b.ID
	values["tags"] = b.Tags
	values["properties"] = b.Properties
	values["error"] = b.Error
	values["raw_response"] = b.RawResponse
	values["synced_at"] = b.SyncedAt
	return values
}
