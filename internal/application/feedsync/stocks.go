package feedsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// StockSyncConfig configures the stocks stream
type StockSyncConfig struct {
	Lookback time.Duration
}

// StockSync polls the stocks feed of one account and writes absolute stock figures.
// The whole stream is collected before anything is written: the figures are sums over
// every observation in the window, so a partial poll would understate them.
type StockSync struct {
	feed     marketplace.StockFeed
	ingester SnapshotIngester
	config   StockSyncConfig
	retry    RetryPolicy
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// NewStockSync creates a new StockSync
func NewStockSync(
	feed marketplace.StockFeed,
	ingester SnapshotIngester,
	config StockSyncConfig,
	retry RetryPolicy,
	observer Observer,
	logger *zap.Logger,
) *StockSync {
	if config.Lookback <= 0 {
		config.Lookback = 24 * time.Hour
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockSync{
		feed:     feed,
		ingester: ingester,
		config:   config,
		retry:    retry,
		observer: observer,
		logger:   logger.Named("stock_sync"),
		now:      time.Now,
	}
}

// Run polls stocks with the current time as run identity
func (s *StockSync) Run(ctx context.Context, account marketplace.AccountID) (RunReport, error) {
	return s.RunAt(ctx, account, s.now())
}

// RunAt polls stocks changed within the lookback before at. at identifies the run: a
// redelivered job carrying the same at writes nothing twice.
func (s *StockSync) RunAt(ctx context.Context, account marketplace.AccountID, at time.Time) (RunReport, error) {
	started := s.now()
	from := marketplace.CursorFromLookback(at, s.config.Lookback)
	report := RunReport{Account: account, Stream: StreamStocks, Start: from, End: from}

	fetch := func(ctx context.Context, cursor marketplace.Cursor) ([]marketplace.StockRow, error) {
		return s.feed.FetchStocks(ctx, account, cursor)
	}
	pager := NewPager[marketplace.StockRow](account, StreamStocks, fetch, s.retry, s.observer, s.logger)

	var rows []marketplace.StockRow
	result, err := pager.Stream(ctx, from, func(_ context.Context, page Page[marketplace.StockRow]) error {
		rows = append(rows, page.Records...)
		return nil
	})
	report.Pages = result.Pages
	report.End = result.Cursor
	report.Stalled = result.Stalled
	if err != nil {
		report.Duration = s.now().Sub(started)
		s.logger.Error("stock poll failed, nothing written", append(report.Fields(), zap.Error(err))...)
		return report, err
	}

	stats, err := s.ingester.IngestSnapshot(ctx, account, marketplace.NewCursor(at), rows)
	report.Stats = stats
	report.Duration = s.now().Sub(started)
	recordOutcomes(ctx, s.observer, account, StreamStocks, stats)
	if err != nil {
		s.logger.Error("stock snapshot ingestion failed", append(report.Fields(), zap.Error(err))...)
		return report, fmt.Errorf("ingest stock snapshot: %w", err)
	}

	s.logger.Info("stock sync completed", report.Fields()...)
	return report, nil
}
