// Package worker provides an asynchronous store: records are queued and
// persisted by a pool of background workers so that the caller's hot path
// never waits on a backend.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// ErrQueueFull is returned by Add when the queue is saturated and the record
// was dropped.
var ErrQueueFull = errors.New("worker queue full, record dropped")

// Config is the configuration options for the worker pool.
type Config struct {
	// Store is the backend records are persisted to.
	Store store.Store

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered record channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool implements store.Store by queueing records for its workers.
type Pool struct {
	config *Config
	queue  chan record.Record
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed against concurrent Add and Close
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Store == nil {
		return nil, errors.New("worker pool requires a store")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan record.Record, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Add submits rec for asynchronous persistence. It never blocks: when the
// queue is full the record is dropped and ErrQueueFull returned.
func (p *Pool) Add(_ context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return store.ErrClosed
	}

	select {
	case p.queue <- rec:
		p.logger.Debug("record queued",
			"table", rec.TableName(),
			"id", rec.RecordID(),
		)
		return nil
	default:
		p.logger.Error("record not queued, queue full, record dropped",
			"table", rec.TableName(),
			"id", rec.RecordID(),
		)
		return ErrQueueFull
	}
}

// Close stops accepting records, waits for queued records to drain and
// closes the wrapped store.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.config.Store.Close()
}

// worker continuously pulls records off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for rec := range p.queue {
		p.process(rec)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) process(rec record.Record) {
	if err := p.config.Store.Add(context.Background(), rec); err != nil {
		p.logger.Error("async record storage failed",
			"table", rec.TableName(),
			"id", rec.RecordID(),
			"error", err,
		)
		return
	}

	p.logger.Debug("record stored",
		"table", rec.TableName(),
		"id", rec.RecordID(),
	)
}
