// Package manufacture reacts to production batch transitions: it opens supplies,
// packs completed orders into them and resets marketplace stock levels.
package manufacture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
)

const (
	// DefaultSupplyWaitDelay is how long a completion waits before it is retried
	DefaultSupplyWaitDelay = 3 * time.Second
	// DefaultMaxRequeues bounds the wait rounds of one completion
	DefaultMaxRequeues = 20
)

// OrchestratorConfig configures a CompletionOrchestrator
type OrchestratorConfig struct {
	// Channel is the completion channel this instance handles
	Channel         manufacture.CompletionChannel
	SupplyWaitDelay time.Duration
	MaxRequeues     int
	EffectTTL       time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.Channel == "" {
		c.Channel = manufacture.ChannelWildberriesFBS
	}
	if c.SupplyWaitDelay <= 0 {
		c.SupplyWaitDelay = DefaultSupplyWaitDelay
	}
	if c.MaxRequeues <= 0 {
		c.MaxRequeues = DefaultMaxRequeues
	}
	if c.EffectTTL <= 0 {
		c.EffectTTL = shared.DefaultDedupConfig().EffectTTL
	}
	return c
}

// PackingObserver is told how many orders were packed
type PackingObserver interface {
	OrdersPacked(ctx context.Context, account marketplace.AccountID, packages, orders int)
}

// CompletionOrchestrator packs the orders of a completed batch into an accepting supply.
// Every side effect is guarded so that redelivered events pack each order once.
type CompletionOrchestrator struct {
	batches   manufacture.BatchReader
	supplies  manufacture.SupplyRepository
	orders    manufacture.OrderReader
	packages  manufacture.PackageRepository
	publisher shared.DelayedPublisher
	dedup     *dedup.Deduplicator
	config    OrchestratorConfig
	observer  PackingObserver
	logger    *zap.Logger
}

// NewCompletionOrchestrator creates a new CompletionOrchestrator
func NewCompletionOrchestrator(
	batches manufacture.BatchReader,
	supplies manufacture.SupplyRepository,
	orders manufacture.OrderReader,
	packages manufacture.PackageRepository,
	publisher shared.DelayedPublisher,
	deduplicator *dedup.Deduplicator,
	config OrchestratorConfig,
	logger *zap.Logger,
) *CompletionOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionOrchestrator{
		batches:   batches,
		supplies:  supplies,
		orders:    orders,
		packages:  packages,
		publisher: publisher,
		dedup:     deduplicator,
		config:    config.withDefaults(),
		logger:    logger.Named("completion_orchestrator"),
	}
}

// WithObserver sets the observer notified about packed orders
func (o *CompletionOrchestrator) WithObserver(observer PackingObserver) *CompletionOrchestrator {
	o.observer = observer
	return o
}

// EventTypes returns the event types this handler is interested in
func (o *CompletionOrchestrator) EventTypes() []string {
	return []string{manufacture.EventTypeBatchCompleted}
}

// Handle processes a BatchCompletedEvent.
// It returns nil when the event needs no work or was re-enqueued to wait, and an
// error when the transport should redeliver it. The completion is marked handled
// only once no order of the batch is left to another delivery.
func (o *CompletionOrchestrator) Handle(ctx context.Context, event shared.DomainEvent) error {
	completed, ok := event.(*manufacture.BatchCompletedEvent)
	if !ok {
		o.logger.Error("unexpected event type",
			zap.String("expected", manufacture.EventTypeBatchCompleted),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			manufacture.EventTypeBatchCompleted, event.EventType())
	}

	log := o.logger.With(
		zap.String("batch_id", completed.BatchID.String()),
		zap.String("account", completed.Account.String()),
	)

	lease, err := o.dedup.Guard(dedup.OpCompletionHandler, o.config.EffectTTL, completed.BatchID.String())
	if err != nil {
		return err
	}
	done, err := lease.AlreadyDone(ctx)
	if err != nil {
		return err
	}
	if done {
		log.Debug("batch completion already handled")
		return nil
	}

	batch, err := o.batches.FindBatch(ctx, completed.BatchID)
	if errors.Is(err, manufacture.ErrBatchNotFound) {
		log.Warn("completed batch not found, event dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: find batch: %v", marketplace.ErrPersistenceFailure, err)
	}
	if !batch.IsCompletedFor(o.config.Channel) {
		log.Debug("batch not completed for this channel",
			zap.String("status", batch.Status.String()),
			zap.String("channel", batch.Channel.String()),
		)
		return nil
	}

	supply, err := o.supplies.FindAccepting(ctx, batch.Account)
	if errors.Is(err, shared.ErrNotFound) {
		return o.requeue(ctx, completed, "no accepting supply", log)
	}
	if err != nil {
		return fmt.Errorf("%w: find supply: %v", marketplace.ErrPersistenceFailure, err)
	}

	packages, claims, inFlight, err := o.collect(ctx, batch, supply, log)
	if err != nil {
		o.release(ctx, claims, log)
		return err
	}

	if len(packages) > 0 {
		if err := o.packages.SaveAll(ctx, packages); err != nil {
			o.release(ctx, claims, log)
			return fmt.Errorf("%w: save packages: %v", marketplace.ErrPersistenceFailure, err)
		}
	}

	packed := len(claims)
	if o.observer != nil && packed > 0 {
		o.observer.OrdersPacked(ctx, batch.Account, len(packages), packed)
	}
	log.Info("orders packed into supply",
		zap.String("supply_id", supply.ID.String()),
		zap.Int("packages", len(packages)),
		zap.Int("orders", packed),
		zap.Int("in_flight", inFlight),
	)

	// A failing holder releases its claims, so the batch is rechecked instead of marked
	if inFlight > 0 {
		return o.requeue(ctx, completed, "orders claimed by another delivery", log)
	}

	if err := lease.MarkDone(ctx); err != nil {
		// packages are saved and each order is guarded, a redelivery only re-reads
		log.Warn("failed to mark batch completion handled", zap.Error(err))
	}
	return nil
}

// requeue schedules the next wait round; the completion is not marked handled.
// Past MaxRequeues rounds the event is dropped.
func (o *CompletionOrchestrator) requeue(ctx context.Context, event *manufacture.BatchCompletedEvent, reason string, log *zap.Logger) error {
	log = log.With(zap.String("reason", reason), zap.Int("requeues", event.Requeues))
	if event.Requeues >= o.config.MaxRequeues {
		log.Error("batch completion abandoned after requeues")
		return nil
	}
	if o.publisher == nil {
		return fmt.Errorf("%w: %s for %s", marketplace.ErrPreconditionNotMet, reason, event.Account)
	}
	if err := o.publisher.PublishDelayed(ctx, o.config.SupplyWaitDelay, event.Requeued()); err != nil {
		return fmt.Errorf("%w: %s, re-enqueue failed: %v", marketplace.ErrPreconditionNotMet, reason, err)
	}
	log.Warn("batch completion re-enqueued", zap.Duration("delay", o.config.SupplyWaitDelay))
	return nil
}

// collect builds one package per product from the batch orders that still await packaging.
// inFlight counts unpacked orders whose claim is held by another delivery.
// It returns the claims taken so far even on error so the caller can release them.
func (o *CompletionOrchestrator) collect(
	ctx context.Context,
	batch *manufacture.ProductionBatch,
	supply *manufacture.Supply,
	log *zap.Logger,
) (packages []*manufacture.Package, claims []*dedup.Lease, inFlight int, err error) {
	for _, product := range batch.Products {
		pkg := manufacture.NewPackage(batch.Account, supply.ID, batch.ID, product.Invariable)

		for _, orderID := range product.Orders {
			lease, held, err := o.claimOrder(ctx, orderID, log)
			if err != nil {
				return packages, claims, inFlight, err
			}
			if held {
				inFlight++
			}
			if lease == nil {
				continue
			}
			claims = append(claims, lease)
			pkg.AddOrder(orderID)
		}

		if pkg.IsEmpty() {
			continue
		}
		packages = append(packages, pkg)
	}
	return packages, claims, inFlight, nil
}

// claimOrder returns a claim for an order that should be packed now, or nil to skip it.
// held reports an unpacked order claimed by another delivery that has not saved it yet.
func (o *CompletionOrchestrator) claimOrder(ctx context.Context, orderID uuid.UUID, log *zap.Logger) (lease *dedup.Lease, held bool, err error) {
	order, err := o.orders.FindOrder(ctx, orderID)
	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("batch references unknown order", zap.String("order_id", orderID.String()))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: find order %s: %v", marketplace.ErrPersistenceFailure, orderID, err)
	}
	if !order.AwaitsPackaging(o.config.Channel) {
		return nil, false, nil
	}

	packed, err := o.packages.IsOrderPacked(ctx, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: check order package %s: %v", marketplace.ErrPersistenceFailure, orderID, err)
	}
	if packed {
		return nil, false, nil
	}

	lease, err = o.dedup.Guard(dedup.OpPackOrder, o.config.EffectTTL, orderID.String())
	if err != nil {
		return nil, false, err
	}
	claimed, err := lease.Claim(ctx)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		return nil, true, nil
	}
	return lease, false, nil
}

func (o *CompletionOrchestrator) release(ctx context.Context, claims []*dedup.Lease, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, lease := range claims {
		if err := lease.Release(ctx); err != nil {
			log.Error("failed to release order claim", zap.String("key", lease.Key()), zap.Error(err))
		}
	}
}

// Ensure CompletionOrchestrator implements shared.EventHandler
var _ shared.EventHandler = (*CompletionOrchestrator)(nil)
