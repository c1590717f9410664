package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/shared"
)

// PageStore is the cache of upstream response bodies
type PageStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
	Close() error
}

// Stores bundles the dedup store and page cache created by the factory
type Stores struct {
	Dedup shared.DedupStore
	Pages PageStore
	// Distributed is true when the stores are backed by Redis
	Distributed bool
}

// Close releases both stores
func (s *Stores) Close() error {
	pagesErr := s.Pages.Close()
	if err := s.Dedup.Close(); err != nil {
		return err
	}
	return pagesErr
}

// StoreFactory creates dedup and page stores based on configuration
type StoreFactory struct {
	redisConfig           RedisConfig
	keyPrefix             string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithKeyPrefix prefixes every Redis key
func WithKeyPrefix(prefix string) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.keyPrefix = prefix
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cfg RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStores tries Redis first and falls back to in-memory stores when allowed
func (f *StoreFactory) CreateStores() (*Stores, error) {
	client, err := NewRedisClient(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis dedup store and page cache",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port),
		)
		return &Stores{
			Dedup:       NewRedisDedupStore(client, f.keyPrefix+defaultDedupKeyPrefix),
			Pages:       NewRedisPageCache(client, f.keyPrefix+defaultPageKeyPrefix),
			Distributed: true,
		}, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for deduplication but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory dedup store. "+
		"Concurrent instances will not share idempotency state.",
		zap.Error(err),
	)
	return &Stores{
		Dedup: NewInMemoryDedupStore(),
		Pages: NewInMemoryPageCache(),
	}, nil
}
