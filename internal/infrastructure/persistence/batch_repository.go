package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
)

// GormBatchRepository implements manufacture.BatchRepository using GORM.
// Domain events recorded on a batch are written to the outbox in the transaction
// that stores its state, and relayed to the event bus from there.
type GormBatchRepository struct {
	db     *gorm.DB
	codec  shared.EventCodec
	logger *zap.Logger
}

// NewGormBatchRepository creates a new GormBatchRepository. Without a codec,
// recorded events are discarded.
func NewGormBatchRepository(db *gorm.DB, codec shared.EventCodec, logger *zap.Logger) *GormBatchRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormBatchRepository{db: db, codec: codec, logger: logger}
}

// FindBatch loads a batch with its product lines
func (r *GormBatchRepository) FindBatch(ctx context.Context, id uuid.UUID) (*manufacture.ProductionBatch, error) {
	var model models.BatchModel
	if err := r.db.WithContext(ctx).
		Preload("Products.Orders").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, manufacture.ErrBatchNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates the batch or updates its status. Product lines are written on creation only.
// Recorded events are cleared once they are committed to the outbox.
func (r *GormBatchRepository) Save(ctx context.Context, batch *manufacture.ProductionBatch) error {
	model := models.BatchModelFromDomain(batch)
	now := time.Now().UTC()

	entries, err := r.outboxEntries(batch.DomainEvents(), now)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.BatchModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"status":     model.Status,
				"channel":    model.Channel,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			model.CreatedAt = now
			model.UpdatedAt = now
			if err := tx.Create(model).Error; err != nil {
				return err
			}
		}
		return appendOutbox(tx, entries)
	})
	if err != nil {
		return err
	}

	batch.ClearDomainEvents()
	return nil
}

func (r *GormBatchRepository) outboxEntries(events []shared.DomainEvent, now time.Time) ([]*shared.OutboxEntry, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if r.codec == nil {
		r.logger.Warn("No event codec, batch events discarded", zap.Int("events", len(events)))
		return nil, nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := r.codec.Encode(event)
		if err != nil {
			return nil, err
		}
		entries = append(entries, shared.NewOutboxEntry(event, payload, now))
	}
	return entries, nil
}

// InProgressProducts returns product identities of open batches for account and channel
func (r *GormBatchRepository) InProgressProducts(ctx context.Context, account marketplace.AccountID, channel manufacture.CompletionChannel) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Table("batch_products AS bp").
		Joins("JOIN production_batches AS b ON b.id = bp.batch_id").
		Where("b.account_id = ? AND b.channel = ? AND b.status = ?",
			account.String(), channel, manufacture.BatchStatusOpen).
		Distinct().
		Pluck("bp.invariable", &ids).Error; err != nil {
		return nil, err
	}

	products := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		products[id] = true
	}
	return products, nil
}

var _ manufacture.BatchRepository = (*GormBatchRepository)(nil)
