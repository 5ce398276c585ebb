// Package observer wraps provider calls so that every call produces exactly
// one observation record, handed to a store, while the provider's result
// reaches the caller unchanged.
package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dario.cat/mergo"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
	"github.com/cfahlgren1/observers/pkg/store/sqlite"
)

// Recorder stamps records with the configured tags and properties and hands
// them to a store. Observers that produce several records per call (such as
// document conversion) use it directly.
type Recorder struct {
	store      store.Store
	clientName string
	meta       record.Meta
	logger     *slog.Logger
	strict     bool
}

// NewRecorder builds a recorder from opts. Without WithStore it opens the
// local SQLite store.
func NewRecorder(clientName string, opts ...Option) (*Recorder, error) {
	o := &options{clientName: clientName}
	for _, opt := range opts {
		opt(o)
	}
	return newRecorder(o)
}

func newRecorder(o *options) (*Recorder, error) {
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	r := &Recorder{
		store:      o.store,
		clientName: o.clientName,
		meta:       record.Meta{Tags: o.tags, Properties: o.properties},
		logger:     o.logger.With("client", o.clientName),
		strict:     o.strict,
	}

	if r.store == nil {
		s, err := sqlite.Connect(sqlite.DefaultPath, sqlite.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("opening default store: %w", err)
		}
		r.store = s
	}
	return r, nil
}

// ClientName is the client name stamped on records.
func (r *Recorder) ClientName() string { return r.clientName }

// Store returns the store records are handed to.
func (r *Recorder) Store() store.Store { return r.store }

// Strict reports whether store failures are returned to callers.
func (r *Recorder) Strict() bool { return r.strict }

// Logger returns the recorder's logger.
func (r *Recorder) Logger() *slog.Logger { return r.logger }

// Record stamps the recorder's tags and properties on rec and hands it to
// the store. Failures are logged and returned.
func (r *Recorder) Record(ctx context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}
	if m, ok := rec.(interface{ Apply(record.Meta) }); ok {
		m.Apply(r.meta)
	}

	if err := r.store.Add(ctx, rec); err != nil {
		r.logger.Warn("failed to store record",
			"table", rec.TableName(),
			"id", rec.RecordID(),
			"error", err,
		)
		return fmt.Errorf("storing record %s: %w", rec.RecordID(), err)
	}
	return nil
}

// Close closes the store.
func (r *Recorder) Close() error {
	return r.store.Close()
}

// CreateFunc is the wrapped provider call.
type CreateFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// ParseFunc builds the record for one call. resp is the zero value when err
// is non-nil.
type ParseFunc[Req, Resp any] func(client string, req Req, resp Resp, err error) record.Record

// Observer intercepts calls of one provider method.
type Observer[Req, Resp any] struct {
	*Recorder

	create   CreateFunc[Req, Resp]
	parse    ParseFunc[Req, Resp]
	defaults *Req
}

// New wraps create. clientName is the default client name for records.
func New[Req, Resp any](clientName string, create CreateFunc[Req, Resp], parse ParseFunc[Req, Resp], opts ...Option) (*Observer[Req, Resp], error) {
	o := &options{clientName: clientName}
	for _, opt := range opts {
		opt(o)
	}

	obs := &Observer[Req, Resp]{create: create, parse: parse}

	switch d := o.defaults.(type) {
	case nil:
	case Req:
		obs.defaults = &d
	case *Req:
		obs.defaults = d
	default:
		return nil, fmt.Errorf("defaults of type %T do not match the request type %T", o.defaults, *new(Req))
	}

	rec, err := newRecorder(o)
	if err != nil {
		return nil, err
	}
	obs.Recorder = rec
	return obs, nil
}

// Create merges request defaults, calls the provider, records the call and
// returns the provider's result unchanged.
func (o *Observer[Req, Resp]) Create(ctx context.Context, req Req) (Resp, error) {
	return o.CreateWith(ctx, req, o.create)
}

// CreateWith is Create with a per-call provider function, for providers
// whose calls carry more than the request (such as a streaming callback).
func (o *Observer[Req, Resp]) CreateWith(ctx context.Context, req Req, create CreateFunc[Req, Resp]) (Resp, error) {
	req = o.Prepare(req)

	resp, err := create(ctx, req)

	rec := o.parse(o.clientName, req, resp, err)
	if storeErr := o.Record(ctx, rec); storeErr != nil && o.strict {
		return resp, errors.Join(err, storeErr)
	}
	return resp, err
}

// Prepare returns req with zero fields filled from the configured defaults.
// Explicit request values win.
func (o *Observer[Req, Resp]) Prepare(req Req) Req {
	if o.defaults == nil {
		return req
	}
	if err := mergo.Merge(&req, *o.defaults); err != nil {
		o.logger.Warn("failed to merge request defaults", "error", err)
	}
	return req
}
