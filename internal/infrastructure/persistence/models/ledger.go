package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/ledger"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

// OrderModel is the persistence model for an ingested marketplace order.
// The upstream id is the primary key, so a second insert of the same order is a conflict.
type OrderModel struct {
	ID         string    `gorm:"type:varchar(128);primary_key"`
	AccountID  string    `gorm:"type:varchar(36);not null;index:idx_orders_account_date,priority:1"`
	Invariable uuid.UUID `gorm:"type:uuid;not null;index"`
	Barcode    string    `gorm:"type:varchar(64);not null"`
	Date       time.Time `gorm:"not null;index:idx_orders_account_date,priority:2"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain OrderRecord
func (m *OrderModel) ToDomain() *ledger.OrderRecord {
	return &ledger.OrderRecord{
		ID:         m.ID,
		Account:    marketplace.AccountID(m.AccountID),
		Invariable: m.Invariable,
		Barcode:    m.Barcode,
		Date:       m.Date,
		CreatedAt:  m.CreatedAt,
	}
}

// OrderModelFromDomain creates a persistence model from a domain OrderRecord
func OrderModelFromDomain(o *ledger.OrderRecord) *OrderModel {
	return &OrderModel{
		ID:         o.ID,
		AccountID:  o.Account.String(),
		Invariable: o.Invariable,
		Barcode:    o.Barcode,
		Date:       o.Date.UTC(),
		CreatedAt:  o.CreatedAt,
	}
}

// StockModel is the persistence model for the current stock of one product identity
type StockModel struct {
	Invariable uuid.UUID `gorm:"type:uuid;primary_key"`
	AccountID  string    `gorm:"type:varchar(36);not null;index"`
	Barcode    string    `gorm:"type:varchar(64);not null"`
	Quantity   int       `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockModel) TableName() string {
	return "stocks"
}

// ToDomain converts the persistence model to a domain StockRecord
func (m *StockModel) ToDomain() ledger.StockRecord {
	return ledger.StockRecord{
		Invariable: m.Invariable,
		Account:    marketplace.AccountID(m.AccountID),
		Barcode:    m.Barcode,
		Quantity:   m.Quantity,
		UpdatedAt:  m.UpdatedAt,
	}
}

// StockModelFromDomain creates a persistence model from a domain StockRecord
func StockModelFromDomain(s *ledger.StockRecord) *StockModel {
	return &StockModel{
		Invariable: s.Invariable,
		AccountID:  s.Account.String(),
		Barcode:    s.Barcode,
		Quantity:   s.Quantity,
		UpdatedAt:  s.UpdatedAt,
	}
}

// ProductBarcodeModel maps a marketplace barcode of an account to a product identity
type ProductBarcodeModel struct {
	AccountID      string     `gorm:"type:varchar(36);primary_key"`
	Barcode        string     `gorm:"type:varchar(64);primary_key"`
	Invariable     uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"type:uuid;not null"`
	OfferID        *uuid.UUID `gorm:"type:uuid"`
	VariationID    *uuid.UUID `gorm:"type:uuid"`
	ModificationID *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (ProductBarcodeModel) TableName() string {
	return "product_barcodes"
}

// ToDomain converts the persistence model to a domain ProductIdentity
func (m *ProductBarcodeModel) ToDomain() ledger.ProductIdentity {
	return ledger.ProductIdentity{
		Invariable:   m.Invariable,
		Product:      m.ProductID,
		Offer:        m.OfferID,
		Variation:    m.VariationID,
		Modification: m.ModificationID,
		Account:      marketplace.AccountID(m.AccountID),
	}
}
