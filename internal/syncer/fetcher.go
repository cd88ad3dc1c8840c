package syncer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"catalogsync/internal/logger"
	"catalogsync/internal/services/bigcommerce"
)

// FetchResult is the detail of a set of product IDs.
type FetchResult struct {
	Products []bigcommerce.Product
	// IDs of chunks whose request failed.
	FailedIDs []int64
	Errors    map[int64]string
	// Requested IDs the upstream did not return.
	Missing    []int64
	Duplicates int
	// Chunks issued, and extra attempts spent on transient failures.
	Requests int
	Retries  int
}

// Fetcher loads product detail in chunks of at most bigcommerce.MaxDetailIDs.
type Fetcher struct {
	upstream    Upstream
	chunkSize   int
	concurrency int
	retry       RetryPolicy
	logger      *logger.Logger
}

func NewFetcher(upstream Upstream, concurrency int, log *logger.Logger) *Fetcher {
	return &Fetcher{
		upstream:    upstream,
		chunkSize:   bigcommerce.MaxDetailIDs,
		concurrency: max(1, concurrency),
		retry:       RetryPolicy{}.withDefaults(bigcommerce.IsTransient),
		logger:      log,
	}
}

// WithRetry replaces the policy applied to each detail chunk.
func (f *Fetcher) WithRetry(p RetryPolicy) *Fetcher {
	f.retry = p.withDefaults(bigcommerce.IsTransient)
	return f
}

// FetchDetails issues one request per chunk with bounded parallelism.
// Transient failures are retried; a chunk that still fails is recorded and
// contributes no products.
func (f *Fetcher) FetchDetails(ctx context.Context, ids []int64, categoryID int64) FetchResult {
	chunks := chunkIDs(ids, f.chunkSize)
	results := make([][]bigcommerce.Product, len(chunks))
	errs := make([]error, len(chunks))
	attempts := make([]int, len(chunks))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			what := fmt.Sprintf("detail chunk %d/%d (%d ids)", i+1, len(chunks), len(chunk))
			n, err := f.retry.Do(ctx, f.logger, what, func(ctx context.Context) error {
				resp, err := f.upstream.ListProducts(ctx, chunk, categoryID)
				if err != nil {
					return err
				}
				results[i] = resp.Data
				return nil
			})
			attempts[i] = n
			if err != nil {
				f.logger.Error("%s failed: %v", what, err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	res := FetchResult{Requests: len(chunks), Errors: map[int64]string{}}
	seen := make(map[int64]struct{}, len(ids))
	for i, chunk := range chunks {
		res.Retries += max(0, attempts[i]-1)
		if errs[i] != nil {
			res.FailedIDs = append(res.FailedIDs, chunk...)
			for _, id := range chunk {
				res.Errors[id] = errs[i].Error()
			}
			continue
		}
		for _, p := range results[i] {
			if _, dup := seen[p.ID]; dup {
				res.Duplicates++
				continue
			}
			seen[p.ID] = struct{}{}
			res.Products = append(res.Products, p)
		}
	}

	for i, chunk := range chunks {
		if errs[i] != nil {
			continue
		}
		for _, id := range chunk {
			if _, ok := seen[id]; !ok {
				res.Missing = append(res.Missing, id)
			}
		}
	}

	if res.Duplicates > 0 {
		f.logger.Warn("detail fetch returned %d duplicate products", res.Duplicates)
	}
	if len(res.Missing) > 0 {
		f.logger.Warn("upstream returned %d of %d requested products", len(ids)-len(res.FailedIDs)-len(res.Missing), len(ids)-len(res.FailedIDs))
	}
	return res
}
