package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/domain/ledger"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

const defaultConcurrency = 8

// Config holds ingestion tuning
type Config struct {
	// Concurrency bounds parallel row processing within one page
	Concurrency int
	OrderTTL    time.Duration
	StockTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.OrderTTL <= 0 {
		c.OrderTTL = 24 * time.Hour
	}
	if c.StockTTL <= 0 {
		c.StockTTL = time.Hour
	}
	return c
}

// OrderIngestor creates one OrderRecord per upstream order id
type OrderIngestor struct {
	resolver ledger.ProductResolver
	orders   ledger.OrderRepository
	dedup    *dedup.Deduplicator
	validate *validator.Validate
	config   Config
	logger   *zap.Logger
}

// NewOrderIngestor creates a new OrderIngestor
func NewOrderIngestor(
	resolver ledger.ProductResolver,
	orders ledger.OrderRepository,
	deduplicator *dedup.Deduplicator,
	config Config,
	logger *zap.Logger,
) *OrderIngestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderIngestor{
		resolver: resolver,
		orders:   orders,
		dedup:    deduplicator,
		validate: validator.New(),
		config:   config.withDefaults(),
		logger:   logger.Named("order_ingestor"),
	}
}

// IngestOrders processes a page of order rows. Permanent row failures are logged and
// counted; the first transient failure cancels the rest and is returned so the page
// is retried as a whole.
func (i *OrderIngestor) IngestOrders(ctx context.Context, account marketplace.AccountID, rows []marketplace.OrderRow) (Stats, error) {
	stats := Stats{Received: len(rows)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.Concurrency)

	for _, row := range rows {
		g.Go(func() error {
			outcome, err := i.ingestOne(gctx, account, row)
			mu.Lock()
			stats.record(outcome)
			mu.Unlock()
			if err != nil && !marketplace.IsPermanent(err) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	return stats, err
}

func (i *OrderIngestor) ingestOne(ctx context.Context, account marketplace.AccountID, row marketplace.OrderRow) (Outcome, error) {
	log := i.logger.With(zap.String("account", account.String()), zap.String("order_id", row.ID), zap.String("barcode", row.Barcode))

	if err := i.validate.Struct(row); err != nil {
		log.Warn("dropping invalid order row", zap.Error(err))
		return OutcomeInvalid, fmt.Errorf("%w: %v", marketplace.ErrValidationFailure, err)
	}

	lease, err := i.dedup.Guard(dedup.OpIngestOrder, i.config.OrderTTL, row.ID)
	if err != nil {
		return OutcomeFailed, err
	}
	done, err := lease.AlreadyDone(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	if done {
		return OutcomeDuplicate, nil
	}

	product, err := i.resolver.Resolve(ctx, account, row.Barcode)
	if errors.Is(err, ledger.ErrProductNotFound) {
		log.Warn("barcode not resolved, order dropped")
		return OutcomeUnresolved, fmt.Errorf("%w: %s", marketplace.ErrResolutionFailure, row.Barcode)
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("resolve barcode %s: %w", row.Barcode, err)
	}

	record, err := ledger.NewOrderRecord(account, row, product)
	if err != nil {
		log.Warn("dropping order that cannot form a record", zap.Error(err))
		return OutcomeInvalid, fmt.Errorf("%w: %v", marketplace.ErrValidationFailure, err)
	}

	claimed, err := lease.Claim(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	if !claimed {
		return OutcomeDuplicate, nil
	}

	exists, err := i.orders.Exists(ctx, row.ID)
	if err != nil {
		i.release(ctx, lease, log)
		return OutcomeFailed, fmt.Errorf("%w: %v", marketplace.ErrPersistenceFailure, err)
	}
	if exists {
		return OutcomeDuplicate, nil
	}

	if err := i.orders.Create(ctx, record); err != nil {
		i.release(ctx, lease, log)
		return OutcomeFailed, fmt.Errorf("%w: %v", marketplace.ErrPersistenceFailure, err)
	}

	log.Debug("order ingested", zap.String("invariable", product.Invariable.String()))
	return OutcomeIngested, nil
}

// release drops a claim after a failed write. It must run even when ctx was cancelled,
// otherwise the claim would hide the order until it expires.
func (i *OrderIngestor) release(ctx context.Context, lease *dedup.Lease, log *zap.Logger) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		log.Error("failed to release dedup claim", zap.Error(err))
	}
}
