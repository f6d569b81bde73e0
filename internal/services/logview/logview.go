// Package logview holds the read and overwrite helpers shared by the
// messaging services: concurrent slot reads, duplicate collapsing, tail
// selection and the retried soft-delete batch.
package logview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cipherlog/internal/domain"
)

// maxParallelReads bounds concurrent slot reads and overwrites.
const maxParallelReads = 4

// ReadSlots reads the schema slot of every distinct publisher concurrently
// and concatenates the rows in publisher order.
func ReadSlots(
	ctx context.Context,
	log domain.MessageLog,
	schema domain.SchemaID,
	publishers ...domain.Address,
) ([]domain.Row, error) {
	seen := make(map[domain.Address]bool, len(publishers))
	var distinct []domain.Address
	for _, p := range publishers {
		p = p.Normalize()
		if !seen[p] {
			seen[p] = true
			distinct = append(distinct, p)
		}
	}

	results := make([][]domain.Row, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, p := range distinct {
		g.Go(func() error {
			rows, err := log.ReadAllByPublisher(gctx, schema, p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.Row
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

type rowKey struct {
	publisher domain.Address
	id        domain.RecordID
}

// Dedupe collapses rows with the same (publisher, id). The last version wins
// and takes the position of the first occurrence.
func Dedupe(rows []domain.Row) []domain.Row {
	index := make(map[rowKey]int, len(rows))
	out := make([]domain.Row, 0, len(rows))
	for _, r := range rows {
		k := rowKey{publisher: r.Publisher.Normalize(), id: r.ID}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// Tail returns the last limit items; limit <= 0 returns all of them.
func Tail[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[len(items)-limit:]
}

// NowMillis returns clock() in Unix milliseconds.
func NowMillis(clock func() time.Time) uint64 {
	return uint64(clock().UnixMilli())
}

// Overwriter republishes records one transaction each, retrying failures.
type Overwriter struct {
	Log      domain.MessageLog
	Attempts int
	Backoff  time.Duration
	Logger   *zap.Logger
}

// Overwrite publishes every record under publisher as its own transaction
// and reports per-record failures. It returns domain.ErrPartialClear when
// any record failed.
func (o Overwriter) Overwrite(
	ctx context.Context,
	publisher domain.Address,
	records []domain.Record,
) (domain.ClearResult, error) {
	var (
		mu     sync.Mutex
		result domain.ClearResult
	)
	g := new(errgroup.Group)
	g.SetLimit(maxParallelReads)
	for _, rec := range records {
		g.Go(func() error {
			err := o.publishWithRetry(ctx, publisher, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, domain.ClearFailure{ID: rec.ID, Err: err})
				return nil
			}
			result.Cleared++
			return nil
		})
	}
	_ = g.Wait()

	if n := len(result.Failed); n > 0 {
		return result, fmt.Errorf("%w: %d of %d records not updated", domain.ErrPartialClear, n, len(records))
	}
	return result, nil
}

func (o Overwriter) publishWithRetry(ctx context.Context, publisher domain.Address, rec domain.Record) error {
	attempts := max(o.Attempts, 1)
	backoff := o.Backoff
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = PublishAndWait(ctx, o.Log, publisher, rec); err == nil {
			return nil
		}
		logger.Warn("overwrite failed",
			zap.Stringer("record", rec.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// PublishAndWait publishes records and waits for the write to land. Any
// failure wraps domain.ErrPublish.
func PublishAndWait(ctx context.Context, log domain.MessageLog, publisher domain.Address, records ...domain.Record) error {
	tx, err := log.Publish(ctx, publisher, records)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPublish, err)
	}
	if err := tx.Wait(ctx); err != nil {
		return fmt.Errorf("%w: tx %s: %w", domain.ErrPublish, tx.ID(), err)
	}
	return nil
}
