package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
)

// GormSupplyRepository implements manufacture.SupplyRepository using GORM
type GormSupplyRepository struct {
	db *gorm.DB
}

// NewGormSupplyRepository creates a new GormSupplyRepository
func NewGormSupplyRepository(db *gorm.DB) *GormSupplyRepository {
	return &GormSupplyRepository{db: db}
}

// FindAccepting returns the newest new-or-open supply of the account
func (r *GormSupplyRepository) FindAccepting(ctx context.Context, account marketplace.AccountID) (*manufacture.Supply, error) {
	var model models.SupplyModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND status IN ?", account.String(),
			[]manufacture.SupplyStatus{manufacture.SupplyStatusNew, manufacture.SupplyStatusOpen}).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a supply
func (r *GormSupplyRepository) Create(ctx context.Context, supply *manufacture.Supply) error {
	return r.db.WithContext(ctx).Create(models.SupplyModelFromDomain(supply)).Error
}

// UpdateStatus moves a supply to status, recording the marketplace identifier once assigned
func (r *GormSupplyRepository) UpdateStatus(ctx context.Context, supply *manufacture.Supply) error {
	result := r.db.WithContext(ctx).
		Model(&models.SupplyModel{}).
		Where("id = ?", supply.ID).
		Updates(map[string]any{
			"status":     supply.Status,
			"identifier": supply.Identifier,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ manufacture.SupplyRepository = (*GormSupplyRepository)(nil)
