package manufacture

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// SupplyStatus is the state of a marketplace supply container
type SupplyStatus string

const (
	// SupplyStatusNew is created locally and awaits its marketplace number
	SupplyStatusNew SupplyStatus = "new"
	// SupplyStatusOpen has a marketplace number and accepts orders
	SupplyStatusOpen   SupplyStatus = "open"
	SupplyStatusClosed SupplyStatus = "closed"
)

// AcceptsOrders returns true if packages may be attached
func (s SupplyStatus) AcceptsOrders() bool {
	return s == SupplyStatusNew || s == SupplyStatusOpen
}

// Supply groups packages shipped to the marketplace together
type Supply struct {
	ID         uuid.UUID
	Account    marketplace.AccountID
	Status     SupplyStatus
	Identifier string
	CreatedAt  time.Time
}

// NewSupply creates a pending supply for account
func NewSupply(account marketplace.AccountID) *Supply {
	return &Supply{
		ID:        uuid.New(),
		Account:   account,
		Status:    SupplyStatusNew,
		CreatedAt: time.Now().UTC(),
	}
}

// OrderStatus is the workflow status of a customer order
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusPackage   OrderStatus = "package"
	OrderStatusDelivery  OrderStatus = "delivery"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// WorkflowOrder is the part of a customer order the packing step reads
type WorkflowOrder struct {
	ID              uuid.UUID
	Status          OrderStatus
	DeliveryChannel CompletionChannel
}

// AwaitsPackaging reports whether the order can be packed for channel
func (o *WorkflowOrder) AwaitsPackaging(channel CompletionChannel) bool {
	return o.Status == OrderStatusPackage && o.DeliveryChannel == channel
}

// Package is a packing unit: the orders of one product attached to a supply
type Package struct {
	ID         uuid.UUID
	Account    marketplace.AccountID
	SupplyID   uuid.UUID
	BatchID    uuid.UUID
	Invariable uuid.UUID
	Orders     []uuid.UUID
	CreatedAt  time.Time
}

// NewPackage creates an empty package for one product
func NewPackage(account marketplace.AccountID, supplyID, batchID, invariable uuid.UUID) *Package {
	return &Package{
		ID:         uuid.New(),
		Account:    account,
		SupplyID:   supplyID,
		BatchID:    batchID,
		Invariable: invariable,
		CreatedAt:  time.Now().UTC(),
	}
}

// AddOrder attaches an order
func (p *Package) AddOrder(id uuid.UUID) {
	p.Orders = append(p.Orders, id)
}

// IsEmpty returns true when no order was attached
func (p *Package) IsEmpty() bool {
	return len(p.Orders) == 0
}
