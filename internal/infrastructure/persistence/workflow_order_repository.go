package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
)

// GormWorkflowOrderRepository reads and records workflow orders
type GormWorkflowOrderRepository struct {
	db *gorm.DB
}

// NewGormWorkflowOrderRepository creates a new GormWorkflowOrderRepository
func NewGormWorkflowOrderRepository(db *gorm.DB) *GormWorkflowOrderRepository {
	return &GormWorkflowOrderRepository{db: db}
}

// FindOrder returns the workflow order with id or shared.ErrNotFound
func (r *GormWorkflowOrderRepository) FindOrder(ctx context.Context, id uuid.UUID) (*manufacture.WorkflowOrder, error) {
	var model models.WorkflowOrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save stores the order state for account
func (r *GormWorkflowOrderRepository) Save(ctx context.Context, account marketplace.AccountID, order *manufacture.WorkflowOrder) error {
	return r.db.WithContext(ctx).Save(&models.WorkflowOrderModel{
		ID:              order.ID,
		AccountID:       account.String(),
		Status:          order.Status,
		DeliveryChannel: order.DeliveryChannel,
		UpdatedAt:       time.Now().UTC(),
	}).Error
}

var _ manufacture.OrderReader = (*GormWorkflowOrderRepository)(nil)
