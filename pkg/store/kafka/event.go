package kafka

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecordAdded is emitted for every record added to the store.
	EventTypeRecordAdded = "observers.record.added"
)

// RecordAddedEvent is the JSON payload published for each record.
type RecordAddedEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Table         string         `json:"table"`
	RecordID      string         `json:"record_id"`
	Record        map[string]any `json:"record"`
}
