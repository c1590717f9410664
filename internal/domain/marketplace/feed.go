package marketplace

import (
	"context"
	"time"
)

// Record is a feed row carrying its upstream last-change time
type Record interface {
	ChangedAt() time.Time
}

// OrderRow is one row of the orders feed. 1 row = 1 order = 1 unit of product.
type OrderRow struct {
	ID             string `validate:"required,max=128"` // srid
	Barcode        string `validate:"required,max=64"`
	Date           time.Time
	LastChangeDate time.Time `validate:"required"`
	WarehouseName  string
	IsCancel       bool
}

// ChangedAt implements Record
func (r OrderRow) ChangedAt() time.Time {
	return r.LastChangeDate
}

// StockRow is one row of the stocks feed: quantity of a barcode at one warehouse
type StockRow struct {
	Barcode        string    `validate:"required,max=64"`
	Quantity       int       `validate:"gte=0"`
	LastChangeDate time.Time `validate:"required"`
	WarehouseName  string
}

// ChangedAt implements Record
func (r StockRow) ChangedAt() time.Time {
	return r.LastChangeDate
}

// Warehouse is a seller (FBS) warehouse
type Warehouse struct {
	ID       int64
	OfficeID int64
	Name     string
}

// StockAmount is one entry of a seller warehouse stock update
type StockAmount struct {
	SKU    string `json:"sku"`
	Amount int    `json:"amount"`
}

// OrderQuery selects a page of the orders feed
type OrderQuery struct {
	Account AccountID
	From    Cursor
	// ByDay requests all orders of the From date regardless of time (flag=1)
	ByDay   bool
}

// OrderFeed fetches one page of the orders feed.
// A 429 is reported as *RateLimitedError, other non-2xx statuses as *RemoteError.
type OrderFeed interface {
	FetchOrders(ctx context.Context, q OrderQuery) ([]OrderRow, error)
}

// StockFeed fetches one page of the stocks feed
type StockFeed interface {
	FetchStocks(ctx context.Context, account AccountID, from Cursor) ([]StockRow, error)
}

// WarehouseDirectory lists seller warehouses
type WarehouseDirectory interface {
	ListWarehouses(ctx context.Context, account AccountID) ([]Warehouse, error)
}

// StockPusher overwrites seller warehouse stock levels
type StockPusher interface {
	PushStocks(ctx context.Context, account AccountID, warehouseID int64, amounts []StockAmount) error
}
