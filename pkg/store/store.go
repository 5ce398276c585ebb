// Package store defines the persistence interface observers hand records to.
package store

import (
	"context"
	"errors"

	"github.com/cfahlgren1/observers/pkg/record"
)

var (
	// ErrClosed is returned by Add after a store has been closed.
	ErrClosed = errors.New("store closed")

	// ErrNilRecord is returned by Add when given a nil record.
	ErrNilRecord = errors.New("nil record")
)

// Store persists observation records to a backend.
type Store interface {
	// Add persists one record. Records must not be mutated by the store.
	Add(ctx context.Context, rec record.Record) error

	// Close flushes pending work and releases backend resources.
	Close() error
}

// Multi fans every record out to all of stores.
func Multi(stores ...Store) Store {
	return &multi{stores: stores}
}

type multi struct {
	stores []Store
}

func (m *multi) Add(ctx context.Context, rec record.Record) error {
	if rec == nil {
		return ErrNilRecord
	}
	var errs []error
	for _, s := range m.stores {
		if err := s.Add(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multi) Close() error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
