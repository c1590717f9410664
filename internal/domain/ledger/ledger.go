package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

var (
	ErrProductNotFound      = errors.New("ledger: product not found for barcode")
	ErrInvalidOrderRecord   = errors.New("ledger: invalid order record")
	ErrInvalidStockQuantity = errors.New("ledger: stock quantity must be non-negative")
)

// ProductIdentity is the stable internal identity of a product variant.
// Invariable is the single key combining product, offer, variation and modification.
type ProductIdentity struct {
	Invariable   uuid.UUID
	Product      uuid.UUID
	Offer        *uuid.UUID
	Variation    *uuid.UUID
	Modification *uuid.UUID
	Account      marketplace.AccountID
}

// IsZero returns true if the identity is unset
func (p ProductIdentity) IsZero() bool {
	return p.Invariable == uuid.Nil
}

// OrderRecord is an ingested marketplace order
type OrderRecord struct {
	ID         string
	Account    marketplace.AccountID
	Invariable uuid.UUID
	Barcode    string
	// Date is the upstream last-change time, used as business date and cursor value
	Date      time.Time
	CreatedAt time.Time
}

// NewOrderRecord validates and builds an OrderRecord for a resolved product
func NewOrderRecord(account marketplace.AccountID, row marketplace.OrderRow, product ProductIdentity) (*OrderRecord, error) {
	if row.ID == "" || row.Barcode == "" || row.LastChangeDate.IsZero() {
		return nil, ErrInvalidOrderRecord
	}
	if product.IsZero() {
		return nil, ErrInvalidOrderRecord
	}
	return &OrderRecord{
		ID:         row.ID,
		Account:    account,
		Invariable: product.Invariable,
		Barcode:    row.Barcode,
		Date:       row.LastChangeDate.UTC(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// StockRecord is the current stock of one product identity
type StockRecord struct {
	Invariable uuid.UUID
	Account    marketplace.AccountID
	Barcode    string
	Quantity   int
	UpdatedAt  time.Time
}

// NewStockRecord builds a StockRecord; quantity is an absolute figure, never a delta
func NewStockRecord(account marketplace.AccountID, barcode string, product ProductIdentity, quantity int) (*StockRecord, error) {
	if quantity < 0 {
		return nil, ErrInvalidStockQuantity
	}
	return &StockRecord{
		Invariable: product.Invariable,
		Account:    account,
		Barcode:    barcode,
		Quantity:   quantity,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

// ProductResolver resolves a marketplace barcode to a product identity.
// Returns ErrProductNotFound when no product carries the barcode.
type ProductResolver interface {
	Resolve(ctx context.Context, account marketplace.AccountID, barcode string) (ProductIdentity, error)
}

// OrderRepository stores OrderRecords
type OrderRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	// Create inserts the record; inserting an existing id is a no-op
	Create(ctx context.Context, order *OrderRecord) error
	Count(ctx context.Context, account marketplace.AccountID) (int64, error)
	// DeleteBefore removes orders dated before cutoff and returns how many were removed
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StockRepository stores StockRecords
type StockRepository interface {
	// Upsert creates the record or overwrites its quantity
	Upsert(ctx context.Context, stock *StockRecord) error
	FindByAccount(ctx context.Context, account marketplace.AccountID) ([]StockRecord, error)
}
