package feedsync

import (
	"context"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// Stream names
const (
	StreamOrders = "orders"
	StreamStocks = "stocks"
)

// Observer receives sync progress, typically to record metrics
type Observer interface {
	PageFetched(ctx context.Context, account marketplace.AccountID, stream string, records int)
	RateLimitWait(ctx context.Context, account marketplace.AccountID, stream string)
	RowsProcessed(ctx context.Context, account marketplace.AccountID, stream string, outcome string, count int)
}

type nopObserver struct{}

func (nopObserver) PageFetched(context.Context, marketplace.AccountID, string, int)           {}
func (nopObserver) RateLimitWait(context.Context, marketplace.AccountID, string)              {}
func (nopObserver) RowsProcessed(context.Context, marketplace.AccountID, string, string, int) {}
