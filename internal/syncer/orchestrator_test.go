package syncer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"catalogsync/internal/config"
	"catalogsync/internal/database/dbtest"
	"catalogsync/internal/gateway"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"
	"catalogsync/internal/services/bigcommerce"
)

func testChannelConfig() config.ChannelConfig {
	return config.ChannelConfig{
		Name:                    "store-cl",
		ChannelID:               1,
		Country:                 "CL",
		TransferDiscountPercent: 2,
		BenefitsCategoryID:      100,
	}
}

func testStores(db *gorm.DB) Stores {
	return Stores{
		Catalog:     repository.NewCatalogRepository(db),
		Categories:  repository.NewCategoryRepository(db),
		SafetyStock: repository.NewSafetyStockRepository(db),
	}
}

func newTestSyncer(up Upstream, db *gorm.DB, pageSize int) *Syncer {
	return New(up, testStores(db), Options{
		PageSize:           pageSize,
		PageConcurrency:    4,
		DetailConcurrency:  2,
		PersistConcurrency: 2,
		OrphanMaxRatio:     0.5,
		CacheSize:          1000,
		CacheTTL:           time.Minute,
		Clock:              &instantClock{},
	}, logger.NewNop())
}

type tableCounts map[string]int64

func countTables(t *testing.T, db *gorm.DB) tableCounts {
	t.Helper()
	out := tableCounts{}
	for name, model := range map[string]interface{}{
		"products":           &models.Product{},
		"variants":           &models.Variant{},
		"options":            &models.Option{},
		"product_categories": &models.ProductCategory{},
		"product_channels":   &models.ProductChannel{},
		"product_options":    &models.ProductOption{},
		"categories":         &models.Category{},
	} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		out[name] = n
	}
	return out
}

func TestSyncEndToEndOverHTTP(t *testing.T) {
	up := newFakeUpstream(idRange(1, 350)...)
	up.categories = []bigcommerce.Category{
		{ID: 10, Name: "Shoes", IsVisible: true},
		{ID: 100, Name: "Benefits", IsVisible: true},
	}
	srv := httptest.NewServer(up)
	defer srv.Close()

	gw := gateway.New(gateway.Options{
		HTTPClient: srv.Client(),
		Clock:      &instantClock{},
	})
	client := bigcommerce.NewClient(srv.URL, "store", "token", gw, logger.NewNop())
	db := dbtest.New(t)
	s := newTestSyncer(client, db, 200)

	report := s.Run(context.Background(), testChannelConfig())

	require.Equal(t, StatusSuccess, report.Status, report.Error)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 350, report.Listed)
	assert.Zero(t, report.Duplicates)

	sizes := up.detailCallSizes()
	sort.Ints(sizes)
	assert.Equal(t, []int{100, 250}, sizes)

	assert.Equal(t, 350, report.TotalProcessed)
	assert.Equal(t, 0, report.TotalFailed)
	assert.Equal(t, 350, report.Variants.Processed)
	assert.Equal(t, 2, report.Categories.Processed)
	assert.Equal(t, StateClean, report.Reconciliation.State)
	assert.Zero(t, report.Reconciliation.Orphans)
	assert.False(t, report.Reconciliation.GateTripped)

	counts := countTables(t, db)
	assert.Equal(t, int64(350), counts["products"])
	assert.Equal(t, int64(350), counts["product_channels"])
	assert.Equal(t, int64(1), counts["options"])
}

func TestSyncIsIdempotent(t *testing.T) {
	up := newFakeUpstream(idRange(1, 120)...)
	up.categories = []bigcommerce.Category{{ID: 10, Name: "Shoes", IsVisible: true}}
	db := dbtest.New(t)
	s := newTestSyncer(up, db, 50)

	first := s.Run(context.Background(), testChannelConfig())
	require.Equal(t, StatusSuccess, first.Status, first.Error)
	before := countTables(t, db)

	second := s.Run(context.Background(), testChannelConfig())
	require.Equal(t, StatusSuccess, second.Status, second.Error)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, before, countTables(t, db))
	assert.Greater(t, second.Cache.Hits, int64(0))
}

func TestSyncHidesProductsRemovedUpstream(t *testing.T) {
	up := newFakeUpstream(idRange(1, 10)...)
	db := dbtest.New(t)
	s := newTestSyncer(up, db, 50)

	require.Equal(t, StatusSuccess, s.Run(context.Background(), testChannelConfig()).Status)

	up.listing = idRange(1, 8)
	delete(up.products, 9)
	delete(up.products, 10)
	report := s.Run(context.Background(), testChannelConfig())

	assert.Equal(t, StatusSuccess, report.Status, report.Error)
	assert.ElementsMatch(t, []int64{9, 10}, report.Reconciliation.HiddenIDs)

	visible, err := repository.NewCatalogRepository(db).ListVisibleProductIDs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, idRange(1, 8), visible)
}

func TestSyncReportsPartialFailures(t *testing.T) {
	up := newFakeUpstream(idRange(1, 300)...)
	up.failDetail[10] = true
	bad := testProduct(301)
	bad.Variants = nil
	up.add(bad)
	db := dbtest.New(t)
	s := newTestSyncer(up, db, 100)

	report := s.Run(context.Background(), testChannelConfig())

	assert.Equal(t, StatusPartial, report.Status)
	assert.Equal(t, 50, report.TotalProcessed)
	// The whole first detail chunk plus the product without variants.
	assert.Equal(t, 251, report.TotalFailed)
	assert.Contains(t, report.Products.Failures[len(report.Products.Failures)-1].Reason, "no variants")
	assert.Equal(t, 301, report.Listed)
	assert.Equal(t, StateClean, report.Reconciliation.State)
	assert.Equal(t, 2, report.UpstreamRetries)
	assert.NoError(t, report.Err())
}

func TestSyncSurvivesTransientUpstreamTimeouts(t *testing.T) {
	// The first listing page and the first detail chunk each time out once.
	up := &timeoutUpstream{fakeUpstream: newFakeUpstream(idRange(1, 40)...), failures: 2}
	db := dbtest.New(t)
	s := newTestSyncer(up, db, 50)

	report := s.Run(context.Background(), testChannelConfig())

	require.Equal(t, StatusSuccess, report.Status, report.Error)
	assert.Equal(t, 2, up.timeouts)
	assert.Equal(t, 40, report.TotalProcessed)
	assert.Zero(t, report.TotalFailed)
	assert.Equal(t, 1, report.UpstreamRetries)
}

func TestSyncFailsWhenListingUnavailable(t *testing.T) {
	up := newFakeUpstream(1, 2, 3)
	up.listingDown = true
	db := dbtest.New(t)
	s := newTestSyncer(up, db, 50)

	report := s.Run(context.Background(), testChannelConfig())

	assert.Equal(t, StatusFailed, report.Status)
	assert.Contains(t, report.Error, "channel assignments")
	assert.True(t, errors.Is(report.Err(), ErrFatal))
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestSyncFailsOnInvalidChannel(t *testing.T) {
	s := newTestSyncer(newFakeUpstream(), dbtest.New(t), 50)
	ch := testChannelConfig()
	ch.ChannelID = 0

	report := s.Run(context.Background(), ch)
	assert.Equal(t, StatusFailed, report.Status)
	assert.True(t, errors.Is(report.Err(), ErrFatal))
}

func TestSyncAppliesSafetyStockFromInventoryFeed(t *testing.T) {
	up := newFakeUpstream(1)
	up.inventory = []bigcommerce.InventoryItem{{
		Identity: bigcommerce.InventoryIdentity{SKU: "P-1-M"},
		Locations: []bigcommerce.InventoryLocation{
			{LocationID: 1, Settings: bigcommerce.InventorySettings{SafetyStock: 1}},
			{LocationID: 2, Settings: bigcommerce.InventorySettings{SafetyStock: 2}},
		},
	}}
	db := dbtest.New(t)
	s := newTestSyncer(up, db, 50)

	report := s.Run(context.Background(), testChannelConfig())
	require.Equal(t, StatusSuccess, report.Status, report.Error)
	assert.Equal(t, 1, report.SafetyStock)

	product, variants, err := repository.NewCatalogRepository(db).GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, product.SafetyStock)
	assert.Equal(t, 2, product.AvailableStock)
	require.Len(t, variants, 1)
	assert.Equal(t, 2, variants[0].Stock)
}

func TestRunWithIDKeepsCallerRunID(t *testing.T) {
	s := newTestSyncer(newFakeUpstream(1), dbtest.New(t), 50)
	report := s.RunWithID(context.Background(), "run-42", testChannelConfig())
	assert.Equal(t, "run-42", report.RunID)
}

var _ http.Handler = (*fakeUpstream)(nil)
