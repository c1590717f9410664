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

// GormStockRepository implements ledger.StockRepository using GORM
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// Upsert creates the stock row or overwrites its quantity
func (r *GormStockRepository) Upsert(ctx context.Context, stock *ledger.StockRecord) error {
	model := models.StockModelFromDomain(stock)
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invariable"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_id", "barcode", "quantity", "updated_at"}),
		}).
		Create(model).Error
}

// FindByAccount returns every stock row of an account ordered by barcode
func (r *GormStockRepository) FindByAccount(ctx context.Context, account marketplace.AccountID) ([]ledger.StockRecord, error) {
	var rows []models.StockModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", account.String()).
		Order("barcode").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	stocks := make([]ledger.StockRecord, len(rows))
	for i := range rows {
		stocks[i] = rows[i].ToDomain()
	}
	return stocks, nil
}

var _ ledger.StockRepository = (*GormStockRepository)(nil)
