package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

// BatchModel is the persistence model for a production batch
type BatchModel struct {
	BaseModel
	AccountID string                        `gorm:"type:varchar(36);not null;index:idx_batch_account_channel,priority:1"`
	Channel   manufacture.CompletionChannel `gorm:"type:varchar(32);not null;index:idx_batch_account_channel,priority:2"`
	Status    manufacture.BatchStatus       `gorm:"type:varchar(20);not null;default:'open'"`
	Products  []BatchProductModel           `gorm:"foreignKey:BatchID"`
}

// TableName returns the table name for GORM
func (BatchModel) TableName() string {
	return "production_batches"
}

// BatchProductModel is one product line of a batch
type BatchProductModel struct {
	ID         uuid.UUID                `gorm:"type:uuid;primary_key"`
	BatchID    uuid.UUID                `gorm:"type:uuid;not null;index"`
	Invariable uuid.UUID                `gorm:"type:uuid;not null"`
	Total      int                      `gorm:"not null;default:0"`
	Orders     []BatchProductOrderModel `gorm:"foreignKey:BatchProductID"`
}

// TableName returns the table name for GORM
func (BatchProductModel) TableName() string {
	return "batch_products"
}

// BatchProductOrderModel links a batch product line to a workflow order it covers
type BatchProductOrderModel struct {
	BatchProductID uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID        uuid.UUID `gorm:"type:uuid;primary_key"`
}

// TableName returns the table name for GORM
func (BatchProductOrderModel) TableName() string {
	return "batch_product_orders"
}

// ToDomain converts the persistence model to a domain ProductionBatch
func (m *BatchModel) ToDomain() *manufacture.ProductionBatch {
	b := &manufacture.ProductionBatch{
		ID:        m.ID,
		Account:   marketplace.AccountID(m.AccountID),
		Status:    m.Status,
		Channel:   m.Channel,
		UpdatedAt: m.UpdatedAt,
	}
	for _, p := range m.Products {
		orders := make([]uuid.UUID, 0, len(p.Orders))
		for _, o := range p.Orders {
			orders = append(orders, o.OrderID)
		}
		b.AddProduct(p.Invariable, p.Total, orders...)
	}
	return b
}

// BatchModelFromDomain creates a persistence model, product lines included, from a domain ProductionBatch
func BatchModelFromDomain(b *manufacture.ProductionBatch) *BatchModel {
	m := &BatchModel{
		BaseModel: BaseModel{ID: b.ID, UpdatedAt: b.UpdatedAt},
		AccountID: b.Account.String(),
		Channel:   b.Channel,
		Status:    b.Status,
	}
	for _, p := range b.Products {
		line := BatchProductModel{
			ID:         uuid.New(),
			BatchID:    b.ID,
			Invariable: p.Invariable,
			Total:      p.Total,
		}
		for _, orderID := range p.Orders {
			line.Orders = append(line.Orders, BatchProductOrderModel{BatchProductID: line.ID, OrderID: orderID})
		}
		m.Products = append(m.Products, line)
	}
	return m
}

// SupplyModel is the persistence model for a marketplace supply
type SupplyModel struct {
	BaseModel
	AccountID  string                   `gorm:"type:varchar(36);not null;index:idx_supply_account_status,priority:1"`
	Status     manufacture.SupplyStatus `gorm:"type:varchar(20);not null;default:'new';index:idx_supply_account_status,priority:2"`
	Identifier string                   `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (SupplyModel) TableName() string {
	return "supplies"
}

// ToDomain converts the persistence model to a domain Supply
func (m *SupplyModel) ToDomain() *manufacture.Supply {
	return &manufacture.Supply{
		ID:         m.ID,
		Account:    marketplace.AccountID(m.AccountID),
		Status:     m.Status,
		Identifier: m.Identifier,
		CreatedAt:  m.CreatedAt,
	}
}

// SupplyModelFromDomain creates a persistence model from a domain Supply
func SupplyModelFromDomain(s *manufacture.Supply) *SupplyModel {
	return &SupplyModel{
		BaseModel:  BaseModel{ID: s.ID, CreatedAt: s.CreatedAt, UpdatedAt: s.CreatedAt},
		AccountID:  s.Account.String(),
		Status:     s.Status,
		Identifier: s.Identifier,
	}
}

// WorkflowOrderModel is the packing-relevant part of a customer order
type WorkflowOrderModel struct {
	ID              uuid.UUID                     `gorm:"type:uuid;primary_key"`
	AccountID       string                        `gorm:"type:varchar(36);not null;index"`
	Status          manufacture.OrderStatus       `gorm:"type:varchar(20);not null;default:'new'"`
	DeliveryChannel manufacture.CompletionChannel `gorm:"type:varchar(32);not null"`
	UpdatedAt       time.Time                     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WorkflowOrderModel) TableName() string {
	return "workflow_orders"
}

// ToDomain converts the persistence model to a domain WorkflowOrder
func (m *WorkflowOrderModel) ToDomain() *manufacture.WorkflowOrder {
	return &manufacture.WorkflowOrder{
		ID:              m.ID,
		Status:          m.Status,
		DeliveryChannel: m.DeliveryChannel,
	}
}

// PackageModel is the persistence model for a packing unit
type PackageModel struct {
	BaseModel
	AccountID  string              `gorm:"type:varchar(36);not null"`
	SupplyID   uuid.UUID           `gorm:"type:uuid;not null;index"`
	BatchID    uuid.UUID           `gorm:"type:uuid;not null;index"`
	Invariable uuid.UUID           `gorm:"type:uuid;not null"`
	Orders     []PackageOrderModel `gorm:"foreignKey:PackageID"`
}

// TableName returns the table name for GORM
func (PackageModel) TableName() string {
	return "packages"
}

// PackageOrderModel attaches a workflow order to a package. An order belongs to one package at most.
type PackageOrderModel struct {
	PackageID uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID   uuid.UUID `gorm:"type:uuid;primary_key;uniqueIndex:idx_package_orders_order"`
}

// TableName returns the table name for GORM
func (PackageOrderModel) TableName() string {
	return "package_orders"
}

// PackageModelFromDomain creates a persistence model, order links included, from a domain Package
func PackageModelFromDomain(p *manufacture.Package) *PackageModel {
	m := &PackageModel{
		BaseModel:  BaseModel{ID: p.ID, CreatedAt: p.CreatedAt, UpdatedAt: p.CreatedAt},
		AccountID:  p.Account.String(),
		SupplyID:   p.SupplyID,
		BatchID:    p.BatchID,
		Invariable: p.Invariable,
	}
	for _, orderID := range p.Orders {
		m.Orders = append(m.Orders, PackageOrderModel{PackageID: p.ID, OrderID: orderID})
	}
	return m
}
