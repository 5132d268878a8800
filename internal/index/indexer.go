// Package index delivers summary documents to search backends in paced batches.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/pacing"
)

// DefaultBatchSize is the maximum number of documents per IndexMany call.
const DefaultBatchSize = 100

// ErrInvalidConfig indicates an invalid backend configuration.
var ErrInvalidConfig = errors.New("invalid index configuration")

// Indexer durably indexes a batch of documents. Re-sending a document with the
// same ID overwrites it.
type Indexer interface {
	IndexMany(ctx context.Context, docs []domain.IndexDocument) error
}

// Observer is notified after every batch submission.
type Observer interface {
	IndexBatch(size int, err error)
}

// FlushOptions controls batching and pacing.
type FlushOptions struct {
	BatchSize int
	Delay     time.Duration
	Sleep     pacing.Sleeper
	Observer  Observer
}

// Flush sends docs to idx in batches of opts.BatchSize, waiting opts.Delay before each
// batch. A failed batch stops the flush; batches already sent stay indexed.
func Flush(ctx context.Context, idx Indexer, docs []domain.IndexDocument, opts FlushOptions) error {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = pacing.Sleep
	}

	total := (len(docs) + batchSize - 1) / batchSize
	for i := 0; i < len(docs); i += batchSize {
		batch := docs[i:min(i+batchSize, len(docs))]
		number := i/batchSize + 1

		slog.Debug("Indexing batch", "batch", number, "of", total, "size", len(batch))
		if err := sleep(ctx, opts.Delay); err != nil {
			return err
		}

		err := idx.IndexMany(ctx, batch)
		if opts.Observer != nil {
			opts.Observer.IndexBatch(len(batch), err)
		}
		if err != nil {
			return fmt.Errorf("index batch %d of %d: %w", number, total, err)
		}
	}
	return nil
}

// Multi fans a batch out to several indexers in order.
type Multi []Indexer

// IndexMany sends docs to every indexer, even when an earlier one fails.
func (m Multi) IndexMany(ctx context.Context, docs []domain.IndexDocument) error {
	var errs []error
	for _, idx := range m {
		if err := idx.IndexMany(ctx, docs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every document. Used when no backend is configured.
type Discard struct{}

// IndexMany implements Indexer.
func (Discard) IndexMany(context.Context, []domain.IndexDocument) error {
	return nil
}
