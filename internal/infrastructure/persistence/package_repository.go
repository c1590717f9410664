package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
)

// GormPackageRepository implements manufacture.PackageRepository using GORM
type GormPackageRepository struct {
	db *gorm.DB
}

// NewGormPackageRepository creates a new GormPackageRepository
func NewGormPackageRepository(db *gorm.DB) *GormPackageRepository {
	return &GormPackageRepository{db: db}
}

// IsOrderPacked reports whether the order is attached to any package
func (r *GormPackageRepository) IsOrderPacked(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PackageOrderModel{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveAll persists every package with its order links in one transaction.
// The unique order index rejects the whole set if any order is already packed.
func (r *GormPackageRepository) SaveAll(ctx context.Context, packages []*manufacture.Package) error {
	if len(packages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range packages {
			model := models.PackageModelFromDomain(p)
			if err := tx.Omit("Orders").Create(model).Error; err != nil {
				return err
			}
			// Links are inserted directly; association saving would skip conflicts silently
			if len(model.Orders) > 0 {
				if err := tx.Create(&model.Orders).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// CountByBatch returns how many orders were packed for a batch
func (r *GormPackageRepository) CountByBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Table("package_orders AS po").
		Joins("JOIN packages AS p ON p.id = po.package_id").
		Where("p.batch_id = ?", batchID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

var _ manufacture.PackageRepository = (*GormPackageRepository)(nil)
