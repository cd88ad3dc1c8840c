package bigcommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"catalogsync/internal/logger"
)

// MaxDetailIDs is the most product IDs one id:in filter accepts.
const MaxDetailIDs = 250

// Doer sends a request; in production it is the rate-limited gateway.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed: %d - %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL     string
	storeHash   string
	accessToken string
	doer        Doer
	logger      *logger.Logger
}

func NewClient(baseURL, storeHash, accessToken string, doer Doer, logger *logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		storeHash:   storeHash,
		accessToken: accessToken,
		doer:        doer,
		logger:      logger,
	}
}

// ListChannelAssignments fetches one page of the channel's product assignments.
func (c *Client) ListChannelAssignments(ctx context.Context, channelID int64, page, limit int) (*ChannelAssignmentsResponse, error) {
	q := url.Values{}
	q.Set("channel_id:in", strconv.FormatInt(channelID, 10))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var resp ChannelAssignmentsResponse
	if err := c.get(ctx, "/catalog/products/channel-assignments", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProducts fetches full detail (images, variants) for up to MaxDetailIDs
// products. A non-zero categoryID restricts the result to that category.
func (c *Client) ListProducts(ctx context.Context, ids []int64, categoryID int64) (*ProductsResponse, error) {
	if len(ids) > MaxDetailIDs {
		return nil, fmt.Errorf("too many product ids: %d > %d", len(ids), MaxDetailIDs)
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = strconv.FormatInt(id, 10)
	}

	q := url.Values{}
	q.Set("id:in", strings.Join(idStrings, ","))
	q.Set("include", "images,variants")
	q.Set("limit", strconv.Itoa(MaxDetailIDs))
	if categoryID != 0 {
		q.Set("categories:in", strconv.FormatInt(categoryID, 10))
	}

	var resp ProductsResponse
	if err := c.get(ctx, "/catalog/products", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCategories fetches one page of the category tree.
func (c *Client) ListCategories(ctx context.Context, page, limit int) (*CategoriesResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var resp CategoriesResponse
	if err := c.get(ctx, "/catalog/categories", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListInventoryItems fetches one page of per-location inventory settings.
func (c *Client) ListInventoryItems(ctx context.Context, page, limit int) (*InventoryResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var resp InventoryResponse
	if err := c.get(ctx, "/inventory/items", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s/stores/%s/v3%s", c.baseURL, c.storeHash, path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Auth-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("GET %s", path)
	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
