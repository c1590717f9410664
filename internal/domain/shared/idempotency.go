package shared

import (
	"context"
	"time"
)

// DedupStore is the keyed TTL store behind every idempotency guard.
// SetIfAbsent must be atomic: of N concurrent callers with the same key exactly one gets true.
type DedupStore interface {
	// SetIfAbsent stores key with ttl when no live entry exists.
	// Returns true if the entry was created, false if a live entry was already present.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Exists reports whether a live entry exists for key
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// DedupConfig holds TTLs for idempotency windows
type DedupConfig struct {
	// OrderTTL guards order ingestion. Default: 24 hours
	OrderTTL time.Duration
	// StockTTL guards repeated stock writes within one run window. Default: 1 hour
	StockTTL time.Duration
	// EffectTTL guards orchestration side effects (packing, supply opening). Default: 24 hours
	EffectTTL time.Duration
}

// DefaultDedupConfig returns the default idempotency configuration
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		OrderTTL:  24 * time.Hour,
		StockTTL:  time.Hour,
		EffectTTL: 24 * time.Hour,
	}
}
