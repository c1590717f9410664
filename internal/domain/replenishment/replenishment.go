// Package replenishment ranks products by how urgently they need to be manufactured,
// from recent order velocity against current stock.
package replenishment

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

// DaysMinimum is the default sales window and the default minimum coverage, in days
const DaysMinimum = 14

var ErrInvalidParams = errors.New("replenishment: window and coverage days must be positive")

// Params configures a ranking
type Params struct {
	WindowDays      int
	MinCoverageDays int
	Channel         manufacture.CompletionChannel
}

// DefaultParams returns a 14-day window with 14 days of minimum coverage for FBS
func DefaultParams() Params {
	return Params{
		WindowDays:      DaysMinimum,
		MinCoverageDays: DaysMinimum,
		Channel:         manufacture.ChannelWildberriesFBS,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if p.WindowDays <= 0 || p.MinCoverageDays <= 0 {
		return ErrInvalidParams
	}
	if !p.Channel.IsValid() {
		return manufacture.ErrUnknownChannel
	}
	return nil
}

// Since returns the start of the sales window ending at now
func (p Params) Since(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.WindowDays)
}

// DemandRow is the ledger view of one product: orders in the window and current stock
type DemandRow struct {
	Invariable     uuid.UUID
	Barcode        string
	OrdersInWindow int64
	Stock          int
}

// Signal is a ranked replenishment recommendation
type Signal struct {
	Invariable     uuid.UUID       `json:"invariable"`
	Barcode        string          `json:"barcode"`
	OrdersInWindow int64           `json:"orders_in_window"`
	Average        decimal.Decimal `json:"average"`
	Stock          int             `json:"stock"`
	// Coverage is how many days the current stock lasts at the average rate
	Coverage decimal.Decimal `json:"coverage"`
	// Needed is average x minimum coverage days - stock
	Needed decimal.Decimal `json:"needed"`
	// ExistingManufacture is set when an open batch already covers the product
	ExistingManufacture bool `json:"existing_manufacture"`
}

// NeededUnits rounds Needed up to whole units
func (s Signal) NeededUnits() int64 {
	return s.Needed.Ceil().IntPart()
}

// Rank turns demand rows into signals. Rows without orders and rows whose stock already
// covers MinCoverageDays are left out. Products in inProgress stay in the list but sort
// after the others; within each group the largest Needed comes first.
func Rank(rows []DemandRow, inProgress map[uuid.UUID]bool, p Params) []Signal {
	window := decimal.NewFromInt(int64(p.WindowDays))
	coverage := decimal.NewFromInt(int64(p.MinCoverageDays))

	signals := make([]Signal, 0, len(rows))
	for _, row := range rows {
		if row.OrdersInWindow <= 0 {
			continue
		}
		average := decimal.NewFromInt(row.OrdersInWindow).Div(window)
		if !average.IsPositive() {
			continue
		}
		stock := decimal.NewFromInt(int64(row.Stock))
		days := stock.Div(average)
		if !days.LessThan(coverage) {
			continue
		}
		signals = append(signals, Signal{
			Invariable:          row.Invariable,
			Barcode:             row.Barcode,
			OrdersInWindow:      row.OrdersInWindow,
			Average:             average,
			Stock:               row.Stock,
			Coverage:            days,
			Needed:              average.Mul(coverage).Sub(stock),
			ExistingManufacture: inProgress[row.Invariable],
		})
	}

	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.ExistingManufacture != b.ExistingManufacture {
			return !a.ExistingManufacture
		}
		if c := a.Needed.Cmp(b.Needed); c != 0 {
			return c > 0
		}
		return a.Invariable.String() < b.Invariable.String()
	})
	return signals
}

// DemandReader aggregates the ledger for an account since a point in time
type DemandReader interface {
	Demand(ctx context.Context, account marketplace.AccountID, since time.Time) ([]DemandRow, error)
}

// InProgressReader lists products already being manufactured for a channel
type InProgressReader interface {
	InProgressProducts(ctx context.Context, account marketplace.AccountID, channel manufacture.CompletionChannel) (map[uuid.UUID]bool, error)
}
