package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/services/bigcommerce"
)

type CategoryStore interface {
	CategoryReader
	Upsert(ctx context.Context, categories []models.Category) error
	List(ctx context.Context, visibleOnly bool) ([]models.Category, error)
	ListVisibleIDs(ctx context.Context) ([]int64, error)
	Hide(ctx context.Context, ids []int64) (hidden, relations int64, err error)
}

type CategoryResult struct {
	Upserted         int
	Hidden           int64
	DeletedRelations int64
	GateTripped      bool
}

// CategorySync mirrors the upstream category tree.
type CategorySync struct {
	upstream    Upstream
	store       CategoryStore
	pageSize    int
	concurrency int
	retry       RetryPolicy
	maxRatio    float64
	logger      *logger.Logger
	now         func() time.Time
}

func NewCategorySync(upstream Upstream, store CategoryStore, pageSize, concurrency int, maxRatio float64, log *logger.Logger) *CategorySync {
	if maxRatio <= 0 || maxRatio > 1 {
		maxRatio = defaultOrphanMaxRatio
	}
	return &CategorySync{
		upstream:    upstream,
		store:       store,
		pageSize:    pageSize,
		concurrency: concurrency,
		retry:       RetryPolicy{}.withDefaults(bigcommerce.IsTransient),
		maxRatio:    maxRatio,
		logger:      log,
		now:         time.Now,
	}
}

// WithRetry replaces the policy applied to each category page.
func (s *CategorySync) WithRetry(p RetryPolicy) *CategorySync {
	s.retry = p.withDefaults(bigcommerce.IsTransient)
	return s
}

// Run upserts every upstream category and hides the local ones the upstream
// no longer returns, behind the same safety gate as products.
func (s *CategorySync) Run(ctx context.Context, tracker *Tracker) (CategoryResult, error) {
	var res CategoryResult

	raw, degraded, err := walkPages(ctx, s.concurrency, "categories", s.logger, s.retry,
		func(ctx context.Context, page int) ([]bigcommerce.Category, int, error) {
			resp, err := s.upstream.ListCategories(ctx, page, s.pageSize)
			if err != nil {
				return nil, 0, err
			}
			return resp.Data, resp.Meta.Pagination.TotalPages, nil
		})
	if err != nil {
		return res, err
	}

	now := s.now()
	categories := make([]models.Category, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, c := range raw {
		name := strings.TrimSpace(c.Name)
		switch {
		case c.ID <= 0:
			tracker.Fail(EntityCategories, fmt.Sprint(c.ID), "missing category id")
			continue
		case name == "":
			tracker.Fail(EntityCategories, fmt.Sprint(c.ID), "missing name")
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		categories = append(categories, models.Category{
			ID:        c.ID,
			ParentID:  c.ParentID,
			Name:      name,
			Visible:   c.IsVisible,
			SortOrder: c.SortOrder,
			CustomURL: c.CustomURL.URL,
			SyncedAt:  now,
		})
	}

	if err := s.store.Upsert(ctx, categories); err != nil {
		tracker.Fail(EntityCategories, "*", err.Error())
		return res, err
	}
	res.Upserted = len(categories)
	tracker.Processed(EntityCategories, len(categories))

	if degraded > 0 {
		s.logger.Warn("category listing incomplete (%d pages failed), skipping cleanup", degraded)
		return res, nil
	}

	visible, err := s.store.ListVisibleIDs(ctx)
	if err != nil {
		return res, err
	}
	var orphans []int64
	for _, id := range visible {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if gateTripped(len(orphans), len(visible), s.maxRatio) {
		res.GateTripped = true
		s.logger.Warn("safety gate: %d of %d visible categories missing upstream, skipping cleanup", len(orphans), len(visible))
		return res, nil
	}
	if len(orphans) == 0 {
		return res, nil
	}

	res.Hidden, res.DeletedRelations, err = s.store.Hide(ctx, orphans)
	if err != nil {
		return res, err
	}
	s.logger.Info("hid %d categories no longer upstream", res.Hidden)
	return res, nil
}
