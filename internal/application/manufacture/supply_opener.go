package manufacture

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
)

// SupplyOpener opens a new supply when a batch completes and the account has none
// accepting orders. It is the step the CompletionOrchestrator waits for.
type SupplyOpener struct {
	batches  manufacture.BatchReader
	supplies manufacture.SupplyRepository
	dedup    *dedup.Deduplicator
	config   OrchestratorConfig
	logger   *zap.Logger
}

// NewSupplyOpener creates a new SupplyOpener
func NewSupplyOpener(
	batches manufacture.BatchReader,
	supplies manufacture.SupplyRepository,
	deduplicator *dedup.Deduplicator,
	config OrchestratorConfig,
	logger *zap.Logger,
) *SupplyOpener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupplyOpener{
		batches:  batches,
		supplies: supplies,
		dedup:    deduplicator,
		config:   config.withDefaults(),
		logger:   logger.Named("supply_opener"),
	}
}

// EventTypes returns the event types this handler is interested in
func (s *SupplyOpener) EventTypes() []string {
	return []string{manufacture.EventTypeBatchCompleted}
}

// Handle processes a BatchCompletedEvent
func (s *SupplyOpener) Handle(ctx context.Context, event shared.DomainEvent) error {
	completed, ok := event.(*manufacture.BatchCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			manufacture.EventTypeBatchCompleted, event.EventType())
	}

	log := s.logger.With(
		zap.String("batch_id", completed.BatchID.String()),
		zap.String("account", completed.Account.String()),
	)

	lease, err := s.dedup.Guard(dedup.OpOpenSupply, s.config.EffectTTL, completed.BatchID.String())
	if err != nil {
		return err
	}
	done, err := lease.AlreadyDone(ctx)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	batch, err := s.batches.FindBatch(ctx, completed.BatchID)
	if errors.Is(err, manufacture.ErrBatchNotFound) {
		log.Warn("completed batch not found, event dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: find batch: %v", marketplace.ErrPersistenceFailure, err)
	}
	if !batch.IsCompletedFor(s.config.Channel) {
		return nil
	}

	existing, err := s.supplies.FindAccepting(ctx, batch.Account)
	switch {
	case err == nil:
		log.Debug("supply already accepting orders", zap.String("supply_id", existing.ID.String()))
		return lease.MarkDone(ctx)
	case !errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("%w: find supply: %v", marketplace.ErrPersistenceFailure, err)
	}

	claimed, err := lease.Claim(ctx)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	supply := manufacture.NewSupply(batch.Account)
	if err := s.supplies.Create(ctx, supply); err != nil {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.Error("failed to release supply claim", zap.Error(relErr))
		}
		return fmt.Errorf("%w: create supply: %v", marketplace.ErrPersistenceFailure, err)
	}

	log.Info("supply opened", zap.String("supply_id", supply.ID.String()))
	return nil
}

// Ensure SupplyOpener implements shared.EventHandler
var _ shared.EventHandler = (*SupplyOpener)(nil)
