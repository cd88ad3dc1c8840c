package syncer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"catalogsync/internal/logger"
	"catalogsync/internal/services/bigcommerce"
)

// Upstream is the slice of the upstream client the sync pipeline uses.
type Upstream interface {
	ListChannelAssignments(ctx context.Context, channelID int64, page, limit int) (*bigcommerce.ChannelAssignmentsResponse, error)
	ListProducts(ctx context.Context, ids []int64, categoryID int64) (*bigcommerce.ProductsResponse, error)
	ListCategories(ctx context.Context, page, limit int) (*bigcommerce.CategoriesResponse, error)
	ListInventoryItems(ctx context.Context, page, limit int) (*bigcommerce.InventoryResponse, error)
}

// pageFunc fetches one page and reports the total page count.
type pageFunc[T any] func(ctx context.Context, page int) (items []T, totalPages int, err error)

// walkPages fetches page 1, then the remaining pages concurrently with at most
// limit requests in flight. Every page is retried under retry. A later page
// that still fails degrades to empty and is counted; only a page 1 failure is
// returned as an error. Items keep page order.
func walkPages[T any](ctx context.Context, limit int, name string, log *logger.Logger, retry RetryPolicy, fetch pageFunc[T]) ([]T, int, error) {
	fetchPage := func(ctx context.Context, page int) ([]T, int, error) {
		var (
			items []T
			total int
		)
		_, err := retry.Do(ctx, log, fmt.Sprintf("%s page %d", name, page), func(ctx context.Context) error {
			var err error
			items, total, err = fetch(ctx, page)
			return err
		})
		return items, total, err
	}

	first, totalPages, err := fetchPage(ctx, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s page 1: %w", name, err)
	}
	if totalPages <= 1 {
		return first, 0, nil
	}

	pages := make([][]T, totalPages)
	pages[0] = first
	degraded := make([]bool, totalPages)

	var g errgroup.Group
	g.SetLimit(max(1, limit))
	for page := 2; page <= totalPages; page++ {
		page := page
		g.Go(func() error {
			items, _, err := fetchPage(ctx, page)
			if err != nil {
				log.Warn("%s page %d/%d failed, treating as empty: %v", name, page, totalPages, err)
				degraded[page-1] = true
				return nil
			}
			pages[page-1] = items
			return nil
		})
	}
	_ = g.Wait()

	var out []T
	failed := 0
	for i, items := range pages {
		if degraded[i] {
			failed++
		}
		out = append(out, items...)
	}
	return out, failed, nil
}

// Paginator walks a channel's product assignment listing.
type Paginator struct {
	upstream    Upstream
	pageSize    int
	concurrency int
	retry       RetryPolicy
	logger      *logger.Logger
}

func NewPaginator(upstream Upstream, pageSize, concurrency int, log *logger.Logger) *Paginator {
	if pageSize <= 0 {
		pageSize = 250
	}
	return &Paginator{
		upstream:    upstream,
		pageSize:    pageSize,
		concurrency: concurrency,
		retry:       RetryPolicy{}.withDefaults(bigcommerce.IsTransient),
		logger:      log,
	}
}

// WithRetry replaces the policy applied to each listing page.
func (p *Paginator) WithRetry(r RetryPolicy) *Paginator {
	p.retry = r.withDefaults(bigcommerce.IsTransient)
	return p
}

// Listing is the full set of product IDs assigned to a channel. IDs are in
// page order and may contain duplicates.
type Listing struct {
	IDs           []int64
	DegradedPages int
}

// Complete reports whether every page was read.
func (l Listing) Complete() bool { return l.DegradedPages == 0 }

// ListAllIDs always starts from page 1.
func (p *Paginator) ListAllIDs(ctx context.Context, channelID int64) (Listing, error) {
	ids, degraded, err := walkPages(ctx, p.concurrency, "channel assignments", p.logger, p.retry,
		func(ctx context.Context, page int) ([]int64, int, error) {
			resp, err := p.upstream.ListChannelAssignments(ctx, channelID, page, p.pageSize)
			if err != nil {
				return nil, 0, err
			}
			ids := make([]int64, 0, len(resp.Data))
			for _, a := range resp.Data {
				if a.ProductID > 0 {
					ids = append(ids, a.ProductID)
				}
			}
			return ids, resp.Meta.Pagination.TotalPages, nil
		})
	if err != nil {
		return Listing{}, err
	}
	return Listing{IDs: ids, DegradedPages: degraded}, nil
}

// dedupe keeps the first occurrence of every ID and counts the rest.
func dedupe(ids []int64) ([]int64, int) {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, len(ids) - len(out)
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		chunks = append(chunks, ids[start:min(start+size, len(ids))])
	}
	return chunks
}
