package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/application/feedsync"
	"github.com/erp/manufacture/internal/application/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

// OrdersRunner syncs the orders feed of an account
type OrdersRunner interface {
	Run(ctx context.Context, account marketplace.AccountID) (feedsync.RunReport, error)
}

// StocksRunner polls the stocks feed of an account as of a run instant
type StocksRunner interface {
	RunAt(ctx context.Context, account marketplace.AccountID, at time.Time) (feedsync.RunReport, error)
}

// StockResetRunner pushes FBS stock amounts of an account
type StockResetRunner interface {
	Reset(ctx context.Context, account marketplace.AccountID, run time.Time) (manufacture.ResetReport, error)
}

// OrderPurger deletes orders older than a cutoff
type OrderPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncExecutor dispatches jobs to the component that runs their kind.
// A nil component leaves its kind unsupported.
type SyncExecutor struct {
	Orders    OrdersRunner
	Stocks    StocksRunner
	Reset     StockResetRunner
	Purger    OrderPurger
	Retention time.Duration
	Logger    *zap.Logger
}

// Execute runs job
func (e *SyncExecutor) Execute(ctx context.Context, job *Job) error {
	switch {
	case job.Kind == JobKindOrders && e.Orders != nil:
		_, err := e.Orders.Run(ctx, job.Account)
		return err
	case job.Kind == JobKindStocks && e.Stocks != nil:
		_, err := e.Stocks.RunAt(ctx, job.Account, job.RunAt)
		return err
	case job.Kind == JobKindFBSReset && e.Reset != nil:
		_, err := e.Reset.Reset(ctx, job.Account, job.RunAt)
		return err
	case job.Kind == JobKindPurge && e.Purger != nil:
		return e.purge(ctx, job)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
}

func (e *SyncExecutor) purge(ctx context.Context, job *Job) error {
	if e.Retention <= 0 {
		return fmt.Errorf("%w: retention must be positive", ErrInvalidConfig)
	}
	cutoff := job.RunAt.Add(-e.Retention)
	removed, err := e.Purger.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge orders before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if e.Logger != nil {
		e.Logger.Info("orders purged",
			zap.Time("cutoff", cutoff),
			zap.Int64("removed", removed),
		)
	}
	return nil
}

var _ JobExecutor = (*SyncExecutor)(nil)
