package syncer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"catalogsync/internal/gateway"
	"catalogsync/internal/logger"
	"catalogsync/internal/repository"
	"catalogsync/internal/services/bigcommerce"
)

// ChunkWriter stores one chunk atomically.
type ChunkWriter interface {
	ReplaceChunk(ctx context.Context, chunk repository.Chunk) error
}

type PersisterOptions struct {
	Concurrency int
	ChunkSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	Clock       gateway.Clock
	// IsTransient decides whether a failed chunk is retried.
	IsTransient func(error) bool
}

// Persister writes transformed records chunk by chunk. Each chunk commits or
// rolls back on its own.
type Persister struct {
	store  ChunkWriter
	opts   PersisterOptions
	retry  RetryPolicy
	logger *logger.Logger
}

func NewPersister(store ChunkWriter, opts PersisterOptions, log *logger.Logger) *Persister {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = bigcommerce.MaxDetailIDs
	}
	retry := RetryPolicy{
		MaxAttempts: opts.MaxAttempts,
		BaseBackoff: opts.BaseBackoff,
		Clock:       opts.Clock,
		IsTransient: opts.IsTransient,
	}.withDefaults(repository.IsTransient)
	return &Persister{store: store, opts: opts, retry: retry, logger: log}
}

// BuildChunks groups records into storage chunks for one channel.
func (p *Persister) BuildChunks(channelID int64, records []bigcommerce.Record) []repository.Chunk {
	var chunks []repository.Chunk
	for start := 0; start < len(records); start += p.opts.ChunkSize {
		part := records[start:min(start+p.opts.ChunkSize, len(records))]
		chunk := repository.Chunk{ChannelID: channelID}
		seenOptions := make(map[int64]struct{})
		for _, rec := range part {
			chunk.Products = append(chunk.Products, rec.Product)
			chunk.Variants = append(chunk.Variants, rec.Variants...)
			chunk.Categories = append(chunk.Categories, rec.Categories...)
			chunk.ProductOptions = append(chunk.ProductOptions, rec.ProductOptions...)
			for _, o := range rec.Options {
				if _, ok := seenOptions[o.ID]; ok {
					continue
				}
				seenOptions[o.ID] = struct{}{}
				chunk.Options = append(chunk.Options, o)
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Persist writes one chunk, retrying transient failures with exponential
// backoff. It returns the number of attempts made and the last error.
func (p *Persister) Persist(ctx context.Context, chunk repository.Chunk) (int, error) {
	what := fmt.Sprintf("persist chunk of %d products", len(chunk.Products))
	return p.retry.Do(ctx, p.logger, what, func(ctx context.Context) error {
		return p.store.ReplaceChunk(ctx, chunk)
	})
}

// PersistAll writes chunks with bounded parallelism and records outcomes.
// It returns the IDs of products that were stored.
func (p *Persister) PersistAll(ctx context.Context, chunks []repository.Chunk, tracker *Tracker) []int64 {
	stored := make([][]int64, len(chunks))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			ids := chunk.ProductIDs()
			attempts, err := p.Persist(ctx, chunk)
			if err != nil {
				p.logger.Error("chunk of %d products failed after %d attempt(s): %v", len(ids), attempts, err)
				tracker.FailProducts(ids, err.Error())
				for _, v := range chunk.Variants {
					tracker.Fail(EntityVariants, fmt.Sprint(v.ID), "chunk rolled back")
				}
				return nil
			}
			tracker.Processed(EntityProducts, len(chunk.Products))
			tracker.Processed(EntityVariants, len(chunk.Variants))
			tracker.Processed(EntityOptions, len(chunk.Options))
			stored[i] = ids
			return nil
		})
	}
	_ = g.Wait()

	var out []int64
	for _, ids := range stored {
		out = append(out, ids...)
	}
	return out
}

func skusOf(products []bigcommerce.Product) []string {
	var skus []string
	for _, p := range products {
		for _, v := range p.Variants {
			if v.SKU != "" {
				skus = append(skus, v.SKU)
			}
		}
	}
	return skus
}
