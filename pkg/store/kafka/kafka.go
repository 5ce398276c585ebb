// Package kafka publishes observation records as events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
)

// DefaultTopic receives events when no topic is configured.
const DefaultTopic = "observers.records"

// MessageWriter is the subset of *kafka.Writer the store uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the Kafka store.
type Config struct {
	Brokers []string
	Topic   string

	// Writer overrides the writer built from Brokers and Topic.
	Writer MessageWriter

	Logger *slog.Logger
}

// Store implements store.Store by publishing RecordAddedEvent messages keyed
// by record id.
type Store struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewStore creates a Kafka store.
func NewStore(c Config) (*Store, error) {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	writer := c.Writer
	if writer == nil {
		if len(c.Brokers) == 0 {
			return nil, errors.New("kafka store requires at least one broker")
		}
		writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(c.Brokers...),
			Topic:                  c.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		}
	}

	return &Store{
		writer: writer,
		topic:  c.Topic,
		logger: c.Logger.With("store", "kafka", "topic", c.Topic),
	}, nil
}

// Add publishes rec as one event.
func (s *Store) Add(ctx context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}

	event := NewRecordAddedEvent(rec, time.Now().UTC())
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(rec.RecordID()),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventTypeRecordAdded)},
			{Key: "table", Value: []byte(rec.TableName())},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing record %s: %w", rec.RecordID(), err)
	}

	s.logger.Debug("record published", "table", rec.TableName(), "id", rec.RecordID())
	return nil
}

// NewRecordAddedEvent builds the event for rec.
func NewRecordAddedEvent(rec record.Record, at time.Time) *RecordAddedEvent {
	return &RecordAddedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeRecordAdded,
		EventID:       uuid.NewString(),
		EmittedAt:     at,
		Table:         rec.TableName(),
		RecordID:      rec.RecordID(),
		Record:        rec.Values(),
	}
}

// Close flushes and closes the writer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
