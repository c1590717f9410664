package feedsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/application/ingestion"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

// OrderIngester persists a page of order rows
type OrderIngester interface {
	IngestOrders(ctx context.Context, account marketplace.AccountID, rows []marketplace.OrderRow) (ingestion.Stats, error)
}

// SnapshotIngester persists a complete stock poll
type SnapshotIngester interface {
	IngestSnapshot(ctx context.Context, account marketplace.AccountID, run marketplace.Cursor, rows []marketplace.StockRow) (ingestion.Stats, error)
}

// RunReport summarises one sync run of one stream for one account
type RunReport struct {
	Account  marketplace.AccountID
	Stream   string
	Start    marketplace.Cursor
	End      marketplace.Cursor
	Pages    int
	Stalled  bool
	Stats    ingestion.Stats
	Duration time.Duration
}

// Fields renders the report as log fields
func (r RunReport) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("account", r.Account.String()),
		zap.String("stream", r.Stream),
		zap.Stringer("start", r.Start),
		zap.Stringer("end", r.End),
		zap.Int("pages", r.Pages),
		zap.Bool("stalled", r.Stalled),
		zap.Duration("duration", r.Duration),
	}
	return append(fields, r.Stats.Fields()...)
}

// OrderSyncConfig configures the orders stream
type OrderSyncConfig struct {
	Lookback time.Duration
	// ByDay asks the upstream for orders by business date (flag=1) instead of by change time
	ByDay bool
}

// OrderSync pulls the orders feed of one account and ingests it page by page
type OrderSync struct {
	feed     marketplace.OrderFeed
	ingester OrderIngester
	config   OrderSyncConfig
	retry    RetryPolicy
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderSync creates a new OrderSync
func NewOrderSync(
	feed marketplace.OrderFeed,
	ingester OrderIngester,
	config OrderSyncConfig,
	retry RetryPolicy,
	observer Observer,
	logger *zap.Logger,
) *OrderSync {
	if config.Lookback <= 0 {
		config.Lookback = 30 * time.Minute
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderSync{
		feed:     feed,
		ingester: ingester,
		config:   config,
		retry:    retry,
		observer: observer,
		logger:   logger.Named("order_sync"),
		now:      time.Now,
	}
}

// Run syncs orders changed within the configured lookback
func (s *OrderSync) Run(ctx context.Context, account marketplace.AccountID) (RunReport, error) {
	return s.RunSince(ctx, account, marketplace.CursorFromLookback(s.now(), s.config.Lookback))
}

// RunSince syncs orders changed since from. Each page is ingested before the next one is
// requested. On failure the report holds the progress made so far.
func (s *OrderSync) RunSince(ctx context.Context, account marketplace.AccountID, from marketplace.Cursor) (RunReport, error) {
	started := s.now()
	report := RunReport{Account: account, Stream: StreamOrders, Start: from, End: from}

	fetch := func(ctx context.Context, cursor marketplace.Cursor) ([]marketplace.OrderRow, error) {
		return s.feed.FetchOrders(ctx, marketplace.OrderQuery{Account: account, From: cursor, ByDay: s.config.ByDay})
	}
	pager := NewPager[marketplace.OrderRow](account, StreamOrders, fetch, s.retry, s.observer, s.logger)

	result, err := pager.Stream(ctx, from, func(ctx context.Context, page Page[marketplace.OrderRow]) error {
		stats, err := s.ingester.IngestOrders(ctx, account, page.Records)
		report.Stats.Add(stats)
		recordOutcomes(ctx, s.observer, account, StreamOrders, stats)
		if err != nil {
			return fmt.Errorf("ingest orders page %d: %w", page.Number, err)
		}
		return nil
	})

	report.Pages = result.Pages
	report.End = result.Cursor
	report.Stalled = result.Stalled
	report.Duration = s.now().Sub(started)

	if err != nil {
		s.logger.Error("order sync failed", append(report.Fields(), zap.Error(err))...)
		return report, err
	}
	s.logger.Info("order sync completed", report.Fields()...)
	return report, nil
}

func recordOutcomes(ctx context.Context, observer Observer, account marketplace.AccountID, stream string, stats ingestion.Stats) {
	counts := map[ingestion.Outcome]int{
		ingestion.OutcomeIngested:   stats.Ingested,
		ingestion.OutcomeDuplicate:  stats.Duplicates,
		ingestion.OutcomeUnresolved: stats.Unresolved,
		ingestion.OutcomeInvalid:    stats.Invalid,
		ingestion.OutcomeFailed:     stats.Failed,
	}
	for outcome, n := range counts {
		if n > 0 {
			observer.RowsProcessed(ctx, account, stream, outcome.String(), n)
		}
	}
}
