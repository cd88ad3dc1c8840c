package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"catalogsync/internal/services/bigcommerce"
)

var errUpstreamDown = errors.New("connection reset by peer")

// fakeUpstream serves an in-memory catalog both as an Upstream and as an
// http.Handler speaking the v3 wire format.
type fakeUpstream struct {
	mu          sync.Mutex
	listing     []int64
	products    map[int64]bigcommerce.Product
	categories  []bigcommerce.Category
	inventory   []bigcommerce.InventoryItem
	failPages   map[int]bool
	failDetail  map[int64]bool
	listingDown bool

	detailCalls [][]int64
	pageCalls   []int
}

func newFakeUpstream(ids ...int64) *fakeUpstream {
	f := &fakeUpstream{
		products:   map[int64]bigcommerce.Product{},
		failPages:  map[int]bool{},
		failDetail: map[int64]bool{},
	}
	for _, id := range ids {
		f.add(testProduct(id))
	}
	return f
}

func (f *fakeUpstream) add(p bigcommerce.Product) {
	f.listing = append(f.listing, p.ID)
	f.products[p.ID] = p
}

func idRange(from, to int64) []int64 {
	var ids []int64
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return ids
}

func testProduct(id int64) bigcommerce.Product {
	return bigcommerce.Product{
		ID:         id,
		Name:       fmt.Sprintf("Product %d", id),
		SKU:        fmt.Sprintf("P-%d", id),
		Price:      100,
		SalePrice:  80,
		Weight:     1,
		IsVisible:  true,
		Categories: []int64{10},
		Variants: []bigcommerce.Variant{{
			ID:             id * 10,
			SKU:            fmt.Sprintf("P-%d-M", id),
			InventoryLevel: 5,
			OptionValues: []bigcommerce.OptionValue{
				{ID: 1, OptionID: 1, OptionDisplayName: "Size", Label: "M"},
			},
		}},
	}
}

func totalPages(n, limit int) int {
	if limit <= 0 {
		return 1
	}
	return (n + limit - 1) / limit
}

func (f *fakeUpstream) ListChannelAssignments(_ context.Context, channelID int64, page, limit int) (*bigcommerce.ChannelAssignmentsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls = append(f.pageCalls, page)

	if f.listingDown || f.failPages[page] {
		return nil, errUpstreamDown
	}
	start := min((page-1)*limit, len(f.listing))
	end := min(start+limit, len(f.listing))
	resp := &bigcommerce.ChannelAssignmentsResponse{}
	for _, id := range f.listing[start:end] {
		resp.Data = append(resp.Data, bigcommerce.ChannelAssignment{ProductID: id, ChannelID: channelID})
	}
	resp.Meta.Pagination = bigcommerce.Pagination{
		Total:       len(f.listing),
		Count:       len(resp.Data),
		PerPage:     limit,
		CurrentPage: page,
		TotalPages:  totalPages(len(f.listing), limit),
	}
	return resp, nil
}

func (f *fakeUpstream) ListProducts(_ context.Context, ids []int64, _ int64) (*bigcommerce.ProductsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, append([]int64(nil), ids...))

	resp := &bigcommerce.ProductsResponse{}
	for _, id := range ids {
		if f.failDetail[id] {
			return nil, errUpstreamDown
		}
		if p, ok := f.products[id]; ok {
			resp.Data = append(resp.Data, p)
		}
	}
	return resp, nil
}

func (f *fakeUpstream) ListCategories(_ context.Context, page, limit int) (*bigcommerce.CategoriesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &bigcommerce.CategoriesResponse{}
	start := min((page-1)*limit, len(f.categories))
	resp.Data = f.categories[start:min(start+limit, len(f.categories))]
	resp.Meta.Pagination.TotalPages = totalPages(len(f.categories), limit)
	return resp, nil
}

func (f *fakeUpstream) ListInventoryItems(_ context.Context, page, limit int) (*bigcommerce.InventoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &bigcommerce.InventoryResponse{}
	start := min((page-1)*limit, len(f.inventory))
	resp.Data = f.inventory[start:min(start+limit, len(f.inventory))]
	resp.Meta.Pagination.TotalPages = totalPages(len(f.inventory), limit)
	return resp, nil
}

func (f *fakeUpstream) detailCallSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.detailCalls))
	for i, c := range f.detailCalls {
		sizes[i] = len(c)
	}
	return sizes
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, path, _ := strings.Cut(r.URL.Path, "/v3")
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	ctx := r.Context()

	var (
		body interface{}
		err  error
	)
	switch path {
	case "/catalog/products/channel-assignments":
		channelID, _ := strconv.ParseInt(q.Get("channel_id:in"), 10, 64)
		body, err = f.ListChannelAssignments(ctx, channelID, page, limit)
	case "/catalog/products":
		var ids []int64
		for _, s := range strings.Split(q.Get("id:in"), ",") {
			if id, convErr := strconv.ParseInt(s, 10, 64); convErr == nil {
				ids = append(ids, id)
			}
		}
		body, err = f.ListProducts(ctx, ids, 0)
	case "/catalog/categories":
		body, err = f.ListCategories(ctx, page, limit)
	case "/inventory/items":
		body, err = f.ListInventoryItems(ctx, page, limit)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Rate-Limit-Requests-Quota", "150")
	w.Header().Set("X-Rate-Limit-Requests-Left", "140")
	w.Header().Set("X-Rate-Limit-Time-Reset-Ms", "1000")
	w.Header().Set("X-Rate-Limit-Time-Window-Ms", "30000")
	_ = json.NewEncoder(w).Encode(body)
}

var errReadTimeout = errors.New("read tcp 10.0.0.7:443: i/o timeout")

// timeoutUpstream fails the first failures listing and detail calls with
// err (a read timeout by default); a negative count fails every call.
type timeoutUpstream struct {
	*fakeUpstream
	failures int
	err      error

	mu       sync.Mutex
	timeouts int
}

func (u *timeoutUpstream) fail() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failures == 0 {
		return nil
	}
	if u.failures > 0 {
		u.failures--
	}
	u.timeouts++
	if u.err != nil {
		return u.err
	}
	return errReadTimeout
}

func (u *timeoutUpstream) ListChannelAssignments(ctx context.Context, channelID int64, page, limit int) (*bigcommerce.ChannelAssignmentsResponse, error) {
	if err := u.fail(); err != nil {
		return nil, err
	}
	return u.fakeUpstream.ListChannelAssignments(ctx, channelID, page, limit)
}

func (u *timeoutUpstream) ListProducts(ctx context.Context, ids []int64, categoryID int64) (*bigcommerce.ProductsResponse, error) {
	if err := u.fail(); err != nil {
		return nil, err
	}
	return u.fakeUpstream.ListProducts(ctx, ids, categoryID)
}

// instantClock reports wall time but never sleeps.
type instantClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *instantClock) Now() time.Time { return time.Now() }

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}
