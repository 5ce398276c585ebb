package pushcmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
	"github.com/cfahlgren1/observers/pkg/store/sqldriver"
)

// Source is the local store rows are pushed from.
type Source interface {
	Tables(ctx context.Context) ([]string, error)
	Unsynced(ctx context.Context, table string, limit uint64) ([]sqldriver.Row, error)
	MarkSynced(ctx context.Context, table string, ids []string, at time.Time) (int64, error)
}

// Push copies every unsynced row of the given tables (all record tables
// when none are given) into dst, closes dst, and marks the rows synced once
// dst has closed cleanly. Remote stores that buffer writes flush on Close.
//
// It returns the number of records pushed per table.
func Push(ctx context.Context, src Source, dst store.Store, tables []string, logger *slog.Logger) (map[string]int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if len(tables) == 0 {
		var err error
		tables, err = src.Tables(ctx)
		if err != nil {
			dst.Close()
			return nil, fmt.Errorf("listing tables: %w", err)
		}
	}

	pushed := make(map[string][]string, len(tables))
	var errs []error
	for _, table := range tables {
		ids, err := pushTable(ctx, src, dst, table)
		if len(ids) > 0 {
			pushed[table] = ids
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("pushing %s: %w", table, err))
			continue
		}
		logger.Debug("pushed table", "table", table, "records", len(ids))
	}

	if err := dst.Close(); err != nil {
		return nil, errors.Join(append(errs, fmt.Errorf("flushing remote store: %w", err))...)
	}

	now := time.Now()
	counts := make(map[string]int, len(pushed))
	for table, ids := range pushed {
		if _, err := src.MarkSynced(ctx, table, ids, now); err != nil {
			errs = append(errs, fmt.Errorf("marking %s synced: %w", table, err))
			continue
		}
		counts[table] = len(ids)
	}

	return counts, errors.Join(errs...)
}

// pushTable adds the unsynced rows of table to dst and returns the ids of
// the rows dst accepted.
func pushTable(ctx context.Context, src Source, dst store.Store, table string) ([]string, error) {
	rows, err := src.Unsynced(ctx, table, 0)
	if err != nil {
		return nil, err
	}

	// Unsynced returns newest first; push in insertion order.
	rows = lo.Reverse(rows)

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		rec, err := record.FromRow(table, row)
		if err != nil {
			return ids, err
		}
		if err := dst.Add(ctx, rec); err != nil {
			return ids, err
		}
		ids = append(ids, rec.RecordID())
	}
	return ids, nil
}
