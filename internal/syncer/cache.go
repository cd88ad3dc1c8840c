package syncer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"catalogsync/internal/models"
	"catalogsync/internal/repository"
)

type SafetyStockReader interface {
	BySKUs(ctx context.Context, skus []string) (map[string]int, error)
}

type CategoryReader interface {
	Get(ctx context.Context, id int64) (*models.Category, error)
}

// RunCache holds category parents and safety stock for the duration of one
// run. It is bounded in size and age and discarded when the run ends.
type RunCache struct {
	ctx        context.Context
	safety     SafetyStockReader
	categories CategoryReader

	stock *expirable.LRU[string, int]
	cats  *expirable.LRU[int64, *models.Category]

	hits   atomic.Int64
	misses atomic.Int64
}

func NewRunCache(ctx context.Context, size int, ttl time.Duration, safety SafetyStockReader, categories CategoryReader) *RunCache {
	if size <= 0 {
		size = 10000
	}
	return &RunCache{
		ctx:        ctx,
		safety:     safety,
		categories: categories,
		stock:      expirable.NewLRU[string, int](size, nil, ttl),
		cats:       expirable.NewLRU[int64, *models.Category](size, nil, ttl),
	}
}

// PrimeSafetyStock bulk-loads the SKUs not already cached. SKUs without a
// record are cached as zero.
func (c *RunCache) PrimeSafetyStock(ctx context.Context, skus []string) error {
	if c.safety == nil {
		return nil
	}
	missing := make([]string, 0, len(skus))
	for _, sku := range skus {
		if !c.stock.Contains(sku) {
			missing = append(missing, sku)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := c.safety.BySKUs(ctx, missing)
	if err != nil {
		return err
	}
	for _, sku := range missing {
		c.stock.Add(sku, found[sku])
	}
	return nil
}

// PrimeCategories seeds the cache with an already loaded category list.
func (c *RunCache) PrimeCategories(categories []models.Category) {
	for i := range categories {
		cat := categories[i]
		c.cats.Add(cat.ID, &cat)
	}
}

func (c *RunCache) SafetyStock(sku string) int {
	if v, ok := c.stock.Get(sku); ok {
		c.hits.Add(1)
		return v
	}
	c.misses.Add(1)
	if c.safety == nil {
		return 0
	}
	found, err := c.safety.BySKUs(c.ctx, []string{sku})
	if err != nil {
		return 0
	}
	c.stock.Add(sku, found[sku])
	return found[sku]
}

func (c *RunCache) Category(id int64) (*models.Category, bool) {
	if v, ok := c.cats.Get(id); ok {
		c.hits.Add(1)
		return v, v != nil
	}
	c.misses.Add(1)
	if c.categories == nil {
		return nil, false
	}
	cat, err := c.categories.Get(c.ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.cats.Add(id, nil)
		}
		return nil, false
	}
	c.cats.Add(id, cat)
	return cat, true
}

func (c *RunCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Purge drops every entry.
func (c *RunCache) Purge() {
	c.stock.Purge()
	c.cats.Purge()
}
