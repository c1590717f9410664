package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/shared"
)

// RelayConfig tunes the outbox relay
type RelayConfig struct {
	// PollInterval is the pause between outbox scans. Default: 1s
	PollInterval time.Duration
	// BatchSize is the number of entries claimed per scan. Default: 100
	BatchSize int
	// ClaimHold hides claimed entries from other relays. Default: 1m
	ClaimHold time.Duration
	// Retention keeps sent entries for inspection. Default: 7 days
	Retention time.Duration
	// CleanupInterval is the pause between purges of sent entries. Default: 1h
	CleanupInterval time.Duration
}

// DefaultRelayConfig returns the default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:    time.Second,
		BatchSize:       100,
		ClaimHold:       time.Minute,
		Retention:       7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

func (c RelayConfig) withDefaults() RelayConfig {
	d := DefaultRelayConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.ClaimHold <= 0 {
		c.ClaimHold = d.ClaimHold
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

// OutboxRelay hands committed outbox entries to the event bus. An entry is marked
// sent only after Publish accepted it; failures are retried with backoff, so every
// committed event is published at least once.
type OutboxRelay struct {
	repo      shared.OutboxRepository
	publisher shared.EventPublisher
	codec     shared.EventCodec
	config    RelayConfig
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxRelay creates a new OutboxRelay
func NewOutboxRelay(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	codec shared.EventCodec,
	config RelayConfig,
	logger *zap.Logger,
) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{
		repo:      repo,
		publisher: publisher,
		codec:     codec,
		config:    config.withDefaults(),
		logger:    logger.Named("outbox_relay"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the relay and cleanup loops
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.wg.Add(2)
	go r.every(ctx, r.config.PollInterval, func(ctx context.Context) { r.Flush(ctx) })
	go r.every(ctx, r.config.CleanupInterval, r.cleanup)

	r.logger.Info("outbox relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval),
	)
	return nil
}

// Stop ends both loops after the current scan, or when ctx expires
func (r *OutboxRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("outbox relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *OutboxRelay) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Flush publishes the entries due now and returns how many were sent
func (r *OutboxRelay) Flush(ctx context.Context) int {
	entries, err := r.repo.ClaimDue(ctx, r.now(), r.config.ClaimHold, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to claim outbox entries", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range entries {
		if r.relay(ctx, entry) {
			sent++
		}
	}
	return sent
}

func (r *OutboxRelay) relay(ctx context.Context, entry *shared.OutboxEntry) bool {
	log := r.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_id", entry.AggregateID.String()),
	)

	event, err := r.codec.Decode(entry.EventType, entry.Payload)
	if err == nil {
		err = r.publisher.Publish(ctx, event)
	}
	if err != nil {
		entry.MarkFailed(err, r.now())
		if entry.IsDead() {
			log.Error("outbox entry dead after attempts",
				zap.Int("attempts", entry.Attempts),
				zap.String("last_error", entry.LastError),
			)
		} else {
			log.Warn("outbox entry not published, retry scheduled",
				zap.Int("attempts", entry.Attempts),
				zap.Time("next_attempt_at", entry.NextAttemptAt),
				zap.Error(err),
			)
		}
		r.update(ctx, entry, log)
		return false
	}

	entry.MarkSent(r.now())
	r.update(ctx, entry, log)
	log.Debug("outbox entry published")
	return true
}

// update stores the outcome even when ctx ended, so a published entry is not resent
func (r *OutboxRelay) update(ctx context.Context, entry *shared.OutboxEntry, log *zap.Logger) {
	if err := r.repo.Update(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("failed to update outbox entry", zap.Error(err))
	}
}

func (r *OutboxRelay) cleanup(ctx context.Context) {
	cutoff := r.now().Add(-r.config.Retention)
	deleted, err := r.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to purge sent outbox entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("purged sent outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
