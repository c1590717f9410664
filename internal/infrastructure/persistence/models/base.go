package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for workflow models
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// All lists every model owned by this service, in dependency order.
// Used by AutoMigrate in tests and by the sqlite development setup.
func All() []any {
	return []any{
		&OrderModel{},
		&StockModel{},
		&ProductBarcodeModel{},
		&BatchModel{},
		&BatchProductModel{},
		&BatchProductOrderModel{},
		&SupplyModel{},
		&WorkflowOrderModel{},
		&PackageModel{},
		&PackageOrderModel{},
		&OutboxModel{},
	}
}
