package syncer

import (
	"context"
	"strings"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/services/bigcommerce"
)

type SafetyStockStore interface {
	SafetyStockReader
	Upsert(ctx context.Context, records []models.SafetyStock) error
}

// SafetyStockSync refreshes per-SKU safety stock from the inventory feed.
type SafetyStockSync struct {
	upstream    Upstream
	store       SafetyStockStore
	pageSize    int
	concurrency int
	retry       RetryPolicy
	logger      *logger.Logger
	now         func() time.Time
}

func NewSafetyStockSync(upstream Upstream, store SafetyStockStore, pageSize, concurrency int, log *logger.Logger) *SafetyStockSync {
	return &SafetyStockSync{
		upstream:    upstream,
		store:       store,
		pageSize:    pageSize,
		concurrency: concurrency,
		retry:       RetryPolicy{}.withDefaults(bigcommerce.IsTransient),
		logger:      log,
		now:         time.Now,
	}
}

// WithRetry replaces the policy applied to each inventory page.
func (s *SafetyStockSync) WithRetry(p RetryPolicy) *SafetyStockSync {
	s.retry = p.withDefaults(bigcommerce.IsTransient)
	return s
}

// Run sums safety stock across locations per SKU and upserts the totals.
// It returns the number of SKUs written.
func (s *SafetyStockSync) Run(ctx context.Context) (int, error) {
	items, degraded, err := walkPages(ctx, s.concurrency, "inventory", s.logger, s.retry,
		func(ctx context.Context, page int) ([]bigcommerce.InventoryItem, int, error) {
			resp, err := s.upstream.ListInventoryItems(ctx, page, s.pageSize)
			if err != nil {
				return nil, 0, err
			}
			return resp.Data, resp.Meta.Pagination.TotalPages, nil
		})
	if err != nil {
		return 0, err
	}
	if degraded > 0 {
		s.logger.Warn("inventory feed incomplete, %d pages skipped", degraded)
	}

	totals := make(map[string]int)
	order := make([]string, 0, len(items))
	for _, item := range items {
		sku := strings.TrimSpace(item.Identity.SKU)
		if sku == "" {
			continue
		}
		if _, ok := totals[sku]; !ok {
			order = append(order, sku)
		}
		for _, loc := range item.Locations {
			totals[sku] += max(0, loc.Settings.SafetyStock)
		}
	}

	now := s.now()
	records := make([]models.SafetyStock, 0, len(order))
	for _, sku := range order {
		records = append(records, models.SafetyStock{SKU: sku, Quantity: totals[sku], UpdatedAt: now})
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
