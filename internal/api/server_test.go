package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/config"
	"catalogsync/internal/database/dbtest"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"
	"catalogsync/internal/syncer"
)

type fakeTrigger struct {
	requested []string
	err       error
}

func (f *fakeTrigger) RequestSync(_ context.Context, channel string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.requested = append(f.requested, channel)
	return "run-" + channel, nil
}

type fixture struct {
	router  *gin.Engine
	trigger *fakeTrigger
	status  *events.StatusStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	ctx := context.Background()
	catalog := repository.NewCatalogRepository(db)
	categories := repository.NewCategoryRepository(db)

	chunk := repository.Chunk{ChannelID: 1}
	for _, id := range []int64{1, 2, 3} {
		chunk.Products = append(chunk.Products, models.Product{ID: id, Name: "P", Price: decimal.NewFromInt(10), Visible: id != 3})
		chunk.Variants = append(chunk.Variants, models.Variant{ID: id * 10, ProductID: id, SKU: "S"})
		chunk.Categories = append(chunk.Categories, models.ProductCategory{ProductID: id, CategoryID: 5})
	}
	chunk.Categories[1].CategoryID = 6
	require.NoError(t, catalog.ReplaceChunk(ctx, chunk))
	require.NoError(t, categories.Upsert(ctx, []models.Category{
		{ID: 5, Name: "Shoes", Visible: true},
		{ID: 6, Name: "Old", Visible: false},
	}))

	f := &fixture{trigger: &fakeTrigger{}, status: events.NewStatusStore()}
	srv := New(&config.Config{Env: "test"}, logger.NewNop(), Deps{
		Products:   catalog,
		Categories: categories,
		Sync:       f.trigger,
		Status:     f.status,
		Channels:   []config.ChannelConfig{{Name: "store-cl", ChannelID: 1}},
	})
	f.router = srv.Router()
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/products")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"], 2, "hidden products are not listed")
	assert.Equal(t, float64(2), body["pagination"].(map[string]interface{})["total"])

	w = f.do(http.MethodGet, "/api/v1/products?category_id=5")
	assert.Len(t, decode(t, w)["data"], 1)

	w = f.do(http.MethodGet, "/api/v1/products?category_id=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/products?channel=store-cl&limit=1")
	assert.Len(t, decode(t, w)["data"], 1)

	w = f.do(http.MethodGet, "/api/v1/products?channel=nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/products/1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["id"])
	assert.Len(t, body["variants"], 1)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/products/3").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/products/99").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/products/x").Code)
}

func TestListCategoriesReturnsVisibleOnly(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/categories")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "Shoes", data[0].(map[string]interface{})["name"])
}

func TestTriggerSync(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/sync/store-cl")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "run-store-cl", decode(t, w)["run_id"])
	assert.Equal(t, []string{"store-cl"}, f.trigger.requested)

	w = f.do(http.MethodPost, "/api/v1/sync/store-cl")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = f.do(http.MethodPost, "/api/v1/sync/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerSyncQueueFailure(t *testing.T) {
	f := newFixture(t)
	f.trigger.err = errors.New("kafka unavailable")

	w := f.do(http.MethodPost, "/api/v1/sync/store-cl")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSyncStatus(t *testing.T) {
	f := newFixture(t)
	f.status.Record(&syncer.Report{RunID: "r1", Channel: "store-cl", Status: syncer.StatusPartial, TotalFailed: 2})

	w := f.do(http.MethodGet, "/api/v1/sync/status")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]interface{})
	require.Len(t, data, 1)
	report := data[0].(map[string]interface{})
	assert.Equal(t, "partial", report["status"])
	assert.Equal(t, float64(2), report["total_failed"])
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz").Code)

	w := f.do(http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
