package ecommerce

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

const (
	wbOrdersPath     = "/api/v1/supplier/orders"
	wbStocksPath     = "/api/v1/supplier/stocks"
	wbWarehousesPath = "/api/v3/warehouses"
	wbStocksPutPath  = "/api/v3/stocks/"
)

// PageCache stores upstream response bodies
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// WildberriesClient implements the marketplace feed ports against the Wildberries seller API.
// Each call is a single HTTP request: a 429 comes back as *marketplace.RateLimitedError and
// waiting and retrying is left to the caller.
type WildberriesClient struct {
	config     *WildberriesConfig
	httpClient *http.Client
	accounts   marketplace.AccountProvider
	cache      PageCache
	flight     singleflight.Group
	logger     *zap.Logger
}

// NewWildberriesClient creates a new client
func NewWildberriesClient(config *WildberriesConfig, accounts marketplace.AccountProvider, cache PageCache, logger *zap.Logger) (*WildberriesClient, error) {
	if config == nil {
		config = NewWildberriesConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WildberriesClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		accounts: accounts,
		cache:    cache,
		logger:   logger.Named("wildberries"),
	}, nil
}

// ---------------------------------------------------------------------------
// Feeds
// ---------------------------------------------------------------------------

// FetchOrders returns one page of orders changed at or after q.From
func (c *WildberriesClient) FetchOrders(ctx context.Context, q marketplace.OrderQuery) ([]marketplace.OrderRow, error) {
	flag := "0"
	if q.ByDay {
		flag = "1"
	}
	query := url.Values{}
	query.Set("dateFrom", formatDateFrom(q.From))
	query.Set("flag", flag)

	body, err := c.fetchPage(ctx, q.Account, c.config.StatisticsBaseURL, wbOrdersPath, query)
	if err != nil {
		return nil, err
	}

	var raw []wbOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: orders: %v", marketplace.ErrInvalidResponse, err)
	}
	rows := make([]marketplace.OrderRow, 0, len(raw))
	for _, o := range raw {
		rows = append(rows, o.toDomain())
	}
	return rows, nil
}

// FetchStocks returns one page of stock rows changed at or after from
func (c *WildberriesClient) FetchStocks(ctx context.Context, account marketplace.AccountID, from marketplace.Cursor) ([]marketplace.StockRow, error) {
	query := url.Values{}
	query.Set("dateFrom", formatDateFrom(from))

	body, err := c.fetchPage(ctx, account, c.config.StatisticsBaseURL, wbStocksPath, query)
	if err != nil {
		return nil, err
	}

	var raw []wbStock
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: stocks: %v", marketplace.ErrInvalidResponse, err)
	}
	rows := make([]marketplace.StockRow, 0, len(raw))
	for _, s := range raw {
		rows = append(rows, s.toDomain())
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// FBS warehouses and stock updates
// ---------------------------------------------------------------------------

// ListWarehouses returns the seller warehouses of account
func (c *WildberriesClient) ListWarehouses(ctx context.Context, account marketplace.AccountID) ([]marketplace.Warehouse, error) {
	token, err := c.token(account)
	if err != nil {
		return nil, err
	}
	status, body, header, err := c.doRequest(ctx, http.MethodGet, c.config.MarketplaceBaseURL+wbWarehousesPath, token, nil)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(wbWarehousesPath, status, http.StatusOK, body, header); err != nil {
		return nil, err
	}

	var raw []wbWarehouse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: warehouses: %v", marketplace.ErrInvalidResponse, err)
	}
	warehouses := make([]marketplace.Warehouse, 0, len(raw))
	for _, w := range raw {
		warehouses = append(warehouses, marketplace.Warehouse{ID: w.ID, OfficeID: w.OfficeID, Name: w.Name})
	}
	return warehouses, nil
}

// PushStocks overwrites stock amounts at a seller warehouse. Only 204 is success.
func (c *WildberriesClient) PushStocks(ctx context.Context, account marketplace.AccountID, warehouseID int64, amounts []marketplace.StockAmount) error {
	if len(amounts) == 0 {
		return marketplace.ErrEmptyStockAmountBatch
	}
	if len(amounts) > maxStockAmountsPerRequest {
		return fmt.Errorf("wildberries: %d stock amounts exceed the limit of %d per request", len(amounts), maxStockAmountsPerRequest)
	}
	token, err := c.token(account)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(wbStocksUpdate{Stocks: amounts})
	if err != nil {
		return fmt.Errorf("wildberries: failed to encode stocks: %w", err)
	}

	path := wbStocksPutPath + strconv.FormatInt(warehouseID, 10)
	status, body, header, err := c.doRequest(ctx, http.MethodPut, c.config.MarketplaceBaseURL+path, token, payload)
	if err != nil {
		return err
	}
	if err := classifyStatus(path, status, http.StatusNoContent, body, header); err != nil {
		c.logger.Error("FBS stock update rejected",
			zap.String("account", account.String()),
			zap.Int64("warehouse_id", warehouseID),
			zap.Int("status", status),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// fetchPage returns a report page body. Successful non-empty pages are cached for PageTTL,
// every other successful answer for CollapseTTL; concurrent identical calls share one request.
func (c *WildberriesClient) fetchPage(ctx context.Context, account marketplace.AccountID, baseURL, path string, query url.Values) ([]byte, error) {
	token, err := c.token(account)
	if err != nil {
		return nil, err
	}
	key := pageKey(account, path, query)

	if body, ok := c.cachedPage(ctx, key); ok {
		c.logger.Debug("page served from cache", zap.String("path", path), zap.String("account", account.String()))
		return body, nil
	}

	result, err, shared := c.flight.Do(key, func() (interface{}, error) {
		status, body, header, err := c.doRequest(ctx, http.MethodGet, baseURL+path+"?"+query.Encode(), token, nil)
		if err != nil {
			return nil, err
		}
		if err := classifyStatus(path, status, http.StatusOK, body, header); err != nil {
			return nil, err
		}
		ttl := c.config.CollapseTTL
		if !isEmptyArray(body) {
			ttl = c.config.PageTTL
		}
		c.storePage(ctx, key, body, ttl)
		return body, nil
	})
	if err != nil {
		if remote, ok := marketplace.IsRemote(err); ok {
			c.logger.Error("upstream request failed",
				zap.String("account", account.String()),
				zap.String("path", path),
				zap.Int("status", remote.StatusCode),
				zap.String("body", remote.Body),
			)
		}
		return nil, err
	}
	if shared {
		c.logger.Debug("request collapsed with a concurrent caller", zap.String("path", path))
	}
	return result.([]byte), nil
}

func (c *WildberriesClient) cachedPage(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("page cache read failed", zap.Error(err))
		return nil, false
	}
	return body, ok
}

func (c *WildberriesClient) storePage(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, body, ttl); err != nil {
		c.logger.Warn("page cache write failed", zap.Error(err))
	}
}

// doRequest performs one HTTP request and returns status, body and headers
func (c *WildberriesClient) doRequest(ctx context.Context, method, endpoint, token string, payload []byte) (int, []byte, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("wildberries: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %v", marketplace.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("wildberries: failed to read response: %w", err)
	}
	return resp.StatusCode, body, resp.Header, nil
}

func (c *WildberriesClient) token(account marketplace.AccountID) (string, error) {
	if c.accounts == nil {
		return "", marketplace.ErrAccountNotConfigured
	}
	acc, err := c.accounts.Account(account)
	if err != nil {
		return "", err
	}
	if acc.Token == "" {
		return "", fmt.Errorf("%w: %s has no token", marketplace.ErrAccountNotConfigured, account)
	}
	return acc.Token, nil
}

// classifyStatus maps an HTTP status to the marketplace error taxonomy
func classifyStatus(path string, status, want int, body []byte, header http.Header) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &marketplace.RateLimitedError{Endpoint: path, RetryAfter: retryAfter(header)}
	case status != want:
		return &marketplace.RemoteError{Endpoint: path, StatusCode: status, Body: truncate(string(body), 512)}
	default:
		return nil
	}
}

// retryAfter reads Retry-After or X-Ratelimit-Retry as seconds
func retryAfter(header http.Header) time.Duration {
	for _, name := range []string{"Retry-After", "X-Ratelimit-Retry"} {
		v := strings.TrimSpace(header.Get(name))
		if v == "" {
			continue
		}
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func pageKey(account marketplace.AccountID, path string, query url.Values) string {
	sum := sha256.Sum256([]byte(account.String() + "\x1f" + path + "\x1f" + query.Encode()))
	return "wildberries:" + hex.EncodeToString(sum[:])
}

func isEmptyArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var (
	_ marketplace.OrderFeed          = (*WildberriesClient)(nil)
	_ marketplace.StockFeed          = (*WildberriesClient)(nil)
	_ marketplace.WarehouseDirectory = (*WildberriesClient)(nil)
	_ marketplace.StockPusher        = (*WildberriesClient)(nil)
)
