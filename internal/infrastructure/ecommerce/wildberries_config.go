package ecommerce

import (
	"errors"
	"time"
)

// WildberriesConfig holds configuration for the Wildberries seller API
type WildberriesConfig struct {
	// StatisticsBaseURL serves the orders and stocks reports
	StatisticsBaseURL string
	// MarketplaceBaseURL serves FBS warehouses and stock updates
	MarketplaceBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// CollapseTTL caches any answer briefly so near-simultaneous identical calls share one request
	CollapseTTL time.Duration
	// PageTTL caches non-empty successful pages
	PageTTL time.Duration
}

const (
	// WildberriesStatisticsAPIURL is the production reports endpoint
	WildberriesStatisticsAPIURL = "https://statistics-api.wildberries.ru"
	// WildberriesMarketplaceAPIURL is the production marketplace endpoint
	WildberriesMarketplaceAPIURL = "https://marketplace-api.wildberries.ru"

	defaultWildberriesTimeoutSeconds = 60
	defaultCollapseTTL               = time.Second
	defaultPageTTL                   = time.Hour

	// maxStockAmountsPerRequest is the upstream cap of one stock update
	maxStockAmountsPerRequest = 1000

	// maxResponseSize bounds a report page; the orders feed returns up to ~80k rows
	maxResponseSize = 64 << 20
)

// Errors for Wildberries configuration
var (
	ErrWildberriesConfigInvalidTTL = errors.New("wildberries: cache ttl must not be negative")
)

// NewWildberriesConfig creates a configuration with production defaults
func NewWildberriesConfig() *WildberriesConfig {
	return &WildberriesConfig{
		StatisticsBaseURL:  WildberriesStatisticsAPIURL,
		MarketplaceBaseURL: WildberriesMarketplaceAPIURL,
		TimeoutSeconds:     defaultWildberriesTimeoutSeconds,
		CollapseTTL:        defaultCollapseTTL,
		PageTTL:            defaultPageTTL,
	}
}

// Validate validates the configuration and fills defaults
func (c *WildberriesConfig) Validate() error {
	if c.CollapseTTL < 0 || c.PageTTL < 0 {
		return ErrWildberriesConfigInvalidTTL
	}
	if c.StatisticsBaseURL == "" {
		c.StatisticsBaseURL = WildberriesStatisticsAPIURL
	}
	if c.MarketplaceBaseURL == "" {
		c.MarketplaceBaseURL = WildberriesMarketplaceAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultWildberriesTimeoutSeconds
	}
	if c.CollapseTTL == 0 {
		c.CollapseTTL = defaultCollapseTTL
	}
	if c.PageTTL == 0 {
		c.PageTTL = defaultPageTTL
	}
	return nil
}
