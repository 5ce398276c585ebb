// Package inmemory provides an in-process store for tests and dry runs.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
)

// Store keeps records per table in memory.
type Store struct {
	// mu guards tables, ids and closed
	mu sync.RWMutex

	tables map[string][]record.Record
	ids    map[string]struct{}
	closed bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		tables: make(map[string][]record.Record),
		ids:    make(map[string]struct{}),
	}
}

// Add stores rec. A record whose id already exists in its table is ignored.
func (s *Store) Add(_ context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	key := rec.TableName() + "/" + rec.RecordID()
	if _, ok := s.ids[key]; ok {
		return nil
	}
	s.ids[key] = struct{}{}
	s.tables[rec.TableName()] = append(s.tables[rec.TableName()], rec)
	return nil
}

// Records returns a copy of the records stored for table, oldest first.
func (s *Store) Records(table string) []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Record, len(s.tables[table]))
	copy(out, s.tables[table])
	return out
}

// Tables returns the names of every table holding records, sorted.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close marks the store closed. Stored records remain readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
