package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/replenishment"
)

// GormDemandReader aggregates orders against current stock for replenishment ranking
type GormDemandReader struct {
	db *gorm.DB
}

// NewGormDemandReader creates a new GormDemandReader
func NewGormDemandReader(db *gorm.DB) *GormDemandReader {
	return &GormDemandReader{db: db}
}

type demandRow struct {
	Invariable     uuid.UUID
	Barcode        string
	Stock          int
	OrdersInWindow int64
}

// Demand counts orders per product since the given instant. Only products with a stock row
// and at least one order in the window are returned.
func (r *GormDemandReader) Demand(ctx context.Context, account marketplace.AccountID, since time.Time) ([]replenishment.DemandRow, error) {
	var rows []demandRow
	err := r.db.WithContext(ctx).
		Table("stocks AS s").
		Select("s.invariable AS invariable, s.barcode AS barcode, s.quantity AS stock, COUNT(o.id) AS orders_in_window").
		Joins("JOIN orders AS o ON o.invariable = s.invariable AND o.account_id = s.account_id").
		Where("s.account_id = ? AND o.date >= ?", account.String(), since.UTC()).
		Group("s.invariable, s.barcode, s.quantity").
		Order("s.barcode").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	demand := make([]replenishment.DemandRow, len(rows))
	for i, row := range rows {
		demand[i] = replenishment.DemandRow{
			Invariable:     row.Invariable,
			Barcode:        row.Barcode,
			OrdersInWindow: row.OrdersInWindow,
			Stock:          row.Stock,
		}
	}
	return demand, nil
}

var _ replenishment.DemandReader = (*GormDemandReader)(nil)
