package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/manufacture/internal/domain/ledger"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements ledger.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Exists reports whether an order with id was already ingested
func (r *GormOrderRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts the order. An order id that is already stored is left untouched.
func (r *GormOrderRepository) Create(ctx context.Context, order *ledger.OrderRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(models.OrderModelFromDomain(order)).Error
}

// Count returns the number of stored orders of an account
func (r *GormOrderRepository) Count(ctx context.Context, account marketplace.AccountID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("account_id = ?", account.String()).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteBefore removes orders dated before cutoff
func (r *GormOrderRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("date < ?", cutoff.UTC()).
		Delete(&models.OrderModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

var _ ledger.OrderRepository = (*GormOrderRepository)(nil)
