package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"catalogsync/internal/config"
	"catalogsync/internal/gateway"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/services/bigcommerce"
)

type Options struct {
	PageSize           int
	PageConcurrency    int
	DetailConcurrency  int
	PersistConcurrency int
	OrphanMaxRatio     float64
	CacheSize          int
	CacheTTL           time.Duration
	// Detail chunks fetched per worklist batch; defaults to DetailConcurrency.
	ChunksPerBatch int
	// Base wait before repeating a page or detail call that failed transiently.
	UpstreamBackoff time.Duration
	Clock           gateway.Clock
}

// Stores groups the local store collaborators.
type Stores struct {
	Catalog     CatalogStore
	Categories  CategoryStore
	SafetyStock SafetyStockStore
}

// Syncer runs full catalog syncs for one channel at a time.
type Syncer struct {
	upstream Upstream
	stores   Stores
	opts     Options
	logger   *logger.Logger
}

func New(upstream Upstream, stores Stores, opts Options, log *logger.Logger) *Syncer {
	if opts.PageSize <= 0 {
		opts.PageSize = 250
	}
	if opts.PageConcurrency <= 0 {
		opts.PageConcurrency = 20
	}
	if opts.DetailConcurrency <= 0 {
		opts.DetailConcurrency = 5
	}
	if opts.PersistConcurrency <= 0 {
		opts.PersistConcurrency = 3
	}
	if opts.ChunksPerBatch <= 0 {
		opts.ChunksPerBatch = opts.DetailConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = gateway.RealClock{}
	}
	return &Syncer{upstream: upstream, stores: stores, opts: opts, logger: log}
}

// Run performs a full sync of the channel under a fresh run ID.
func (s *Syncer) Run(ctx context.Context, ch config.ChannelConfig) *Report {
	return s.RunWithID(ctx, uuid.NewString(), ch)
}

// RunWithID performs a full sync. It never returns an error: fatal failures
// are reported through Report.Status and Report.Error along with the stats
// gathered before the failure.
func (s *Syncer) RunWithID(ctx context.Context, runID string, ch config.ChannelConfig) *Report {
	if runID == "" {
		runID = uuid.NewString()
	}
	log := s.logger.With("run_id", runID).With("channel", ch.Name)
	report := &Report{
		RunID:          runID,
		Channel:        ch.Name,
		StartedAt:      s.opts.Clock.Now(),
		Reconciliation: ReconciliationReport{State: StatePartiallyCleaned},
	}
	tracker := NewTracker()

	err := s.run(ctx, ch, report, tracker, log)

	tracker.fill(report)
	report.FinishedAt = s.opts.Clock.Now()
	switch {
	case err != nil:
		report.Status = StatusFailed
		report.Error = err.Error()
		log.Error("sync failed after %s: %v", report.FinishedAt.Sub(report.StartedAt), err)
	case report.TotalFailed > 0 || report.Categories.Failed > 0 || report.Variants.Failed > 0 ||
		report.Reconciliation.State != StateClean || len(report.Warnings) > 0:
		report.Status = StatusPartial
	default:
		report.Status = StatusSuccess
	}

	metrics.RecordSyncRun(ch.Name, string(report.Status))
	metrics.RecordSyncItems(ch.Name, EntityProducts, report.Products.Processed, report.Products.Failed)
	metrics.RecordSyncItems(ch.Name, EntityVariants, report.Variants.Processed, report.Variants.Failed)
	metrics.RecordSyncItems(ch.Name, EntityOptions, report.Options.Processed, report.Options.Failed)
	metrics.RecordSyncItems(ch.Name, EntityCategories, report.Categories.Processed, report.Categories.Failed)
	metrics.RecordOrphansHidden(ch.Name, len(report.Reconciliation.HiddenIDs))

	log.Info("sync %s: processed=%d failed=%d listed=%d hidden=%d",
		report.Status, report.TotalProcessed, report.TotalFailed, report.Listed, len(report.Reconciliation.HiddenIDs))
	return report
}

func (s *Syncer) run(ctx context.Context, ch config.ChannelConfig, report *Report, tracker *Tracker, log *logger.Logger) error {
	retry := RetryPolicy{BaseBackoff: s.opts.UpstreamBackoff, Clock: s.opts.Clock}

	if err := ch.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	if err := s.stores.Catalog.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}

	if s.stores.SafetyStock != nil {
		n, err := NewSafetyStockSync(s.upstream, s.stores.SafetyStock, s.opts.PageSize, s.opts.PageConcurrency, log).
			WithRetry(retry).Run(ctx)
		if err != nil {
			tracker.Warn("safety stock sync failed: %v", err)
			log.Warn("safety stock sync failed, continuing with stored values: %v", err)
		}
		report.SafetyStock = n
	}

	cache := NewRunCache(ctx, s.opts.CacheSize, s.opts.CacheTTL, s.stores.SafetyStock, s.stores.Categories)
	defer func() {
		report.Cache = cache.Stats()
		cache.Purge()
	}()

	if s.stores.Categories != nil {
		res, err := NewCategorySync(s.upstream, s.stores.Categories, s.opts.PageSize, s.opts.PageConcurrency, s.opts.OrphanMaxRatio, log).
			WithRetry(retry).Run(ctx, tracker)
		if err != nil {
			tracker.Warn("category sync failed: %v", err)
			log.Warn("category sync failed, continuing with stored categories: %v", err)
		}
		report.Reconciliation.HiddenCategories = res.Hidden
		if res.GateTripped {
			tracker.Warn("category cleanup skipped by safety gate")
		}
		if all, err := s.stores.Categories.List(ctx, false); err == nil {
			cache.PrimeCategories(all)
		}
	}

	listing, err := NewPaginator(s.upstream, s.opts.PageSize, s.opts.PageConcurrency, log).
		WithRetry(retry).ListAllIDs(ctx, ch.ChannelID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	if !listing.Complete() {
		tracker.Warn("%d listing pages failed", listing.DegradedPages)
	}
	ids, dups := dedupe(listing.IDs)
	report.Listed = len(ids)
	report.Duplicates = dups
	if dups > 0 {
		log.Warn("listing returned %d duplicate ids (%d unique)", dups, len(ids))
	}
	log.Info("listed %d products", len(ids))

	fetcher := NewFetcher(s.upstream, s.opts.DetailConcurrency, log).WithRetry(retry)
	transformer := bigcommerce.NewTransformer(cache)
	persister := NewPersister(s.stores.Catalog, PersisterOptions{
		Concurrency: s.opts.PersistConcurrency,
		Clock:       s.opts.Clock,
	}, log)

	seen := append([]int64(nil), ids...)
	worklist := chunkIDs(ids, bigcommerce.MaxDetailIDs*s.opts.ChunksPerBatch)
	for batch := 0; len(worklist) > 0; batch++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
		current := worklist[0]
		worklist = worklist[1:]

		fetched := fetcher.FetchDetails(ctx, current, ch.ParentCategoryID)
		for _, id := range fetched.FailedIDs {
			tracker.Fail(EntityProducts, fmt.Sprint(id), "fetch: "+fetched.Errors[id])
		}
		report.Duplicates += fetched.Duplicates
		report.UpstreamRetries += fetched.Retries

		if err := cache.PrimeSafetyStock(ctx, skusOf(fetched.Products)); err != nil {
			log.Warn("prime safety stock: %v", err)
		}

		records, failures := transformer.Format(fetched.Products, ch)
		for _, f := range failures {
			tracker.Fail(EntityProducts, fmt.Sprint(f.ProductID), f.Reason)
		}
		for _, rec := range records {
			for _, f := range rec.VariantFailures {
				tracker.Fail(EntityVariants, variantKey(f), f.Reason)
			}
			seen = append(seen, rec.Product.ID)
		}

		stored := persister.PersistAll(ctx, persister.BuildChunks(ch.ChannelID, records), tracker)
		log.Debug("batch %d: fetched=%d transformed=%d stored=%d", batch+1, len(fetched.Products), len(records), len(stored))
	}

	rec, err := NewReconciler(s.stores.Catalog, s.opts.OrphanMaxRatio, log).Reconcile(ctx, ch.ChannelID, seen, listing.Complete())
	hiddenCategories := report.Reconciliation.HiddenCategories
	report.Reconciliation = rec
	report.Reconciliation.HiddenCategories = hiddenCategories
	if err != nil {
		if errors.Is(err, ErrFatal) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return nil
}

func variantKey(f bigcommerce.TransformError) string {
	if f.VariantID != 0 {
		return fmt.Sprint(f.VariantID)
	}
	return fmt.Sprintf("product:%d", f.ProductID)
}
