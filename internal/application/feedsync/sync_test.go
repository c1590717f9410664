package feedsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/manufacture/internal/application/ingestion"
	"github.com/erp/manufacture/internal/domain/marketplace"
)

type mockOrderIngester struct {
	mock.Mock
}

func (m *mockOrderIngester) IngestOrders(ctx context.Context, account marketplace.AccountID, rows []marketplace.OrderRow) (ingestion.Stats, error) {
	args := m.Called(ctx, account, rows)
	return args.Get(0).(ingestion.Stats), args.Error(1)
}

type mockSnapshotIngester struct {
	mock.Mock
}

func (m *mockSnapshotIngester) IngestSnapshot(ctx context.Context, account marketplace.AccountID, run marketplace.Cursor, rows []marketplace.StockRow) (ingestion.Stats, error) {
	args := m.Called(ctx, account, run, rows)
	return args.Get(0).(ingestion.Stats), args.Error(1)
}

type stockScript struct {
	pages [][]marketplace.StockRow
	err   error
	asked []marketplace.Cursor
}

func (s *stockScript) FetchStocks(_ context.Context, _ marketplace.AccountID, from marketplace.Cursor) ([]marketplace.StockRow, error) {
	s.asked = append(s.asked, from)
	if len(s.pages) == 0 {
		return nil, s.err
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

type countingObserver struct {
	pages    int
	waits    int
	outcomes map[string]int
}

func (o *countingObserver) PageFetched(context.Context, marketplace.AccountID, string, int) { o.pages++ }
func (o *countingObserver) RateLimitWait(context.Context, marketplace.AccountID, string)    { o.waits++ }
func (o *countingObserver) RowsProcessed(_ context.Context, _ marketplace.AccountID, _ string, outcome string, n int) {
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome] += n
}

func TestOrderSync_RunIngestsEachPage(t *testing.T) {
	page1 := []marketplace.OrderRow{order("a", at(1)), order("b", at(2))}
	page2 := []marketplace.OrderRow{order("c", at(3))}
	feed := newScriptedFeed(response{rows: page1}, response{rows: page2})

	ingester := new(mockOrderIngester)
	ingester.On("IngestOrders", mock.Anything, testAccount, page1).Return(ingestion.Stats{Received: 2, Ingested: 2}, nil).Once()
	ingester.On("IngestOrders", mock.Anything, testAccount, page2).Return(ingestion.Stats{Received: 1, Duplicates: 1}, nil).Once()

	observer := &countingObserver{}
	sync := NewOrderSync(feed, ingester, OrderSyncConfig{Lookback: time.Hour}, testPolicy(&recordedSleeps{}), observer, nil)
	sync.now = func() time.Time { return base.Add(90 * time.Minute) }

	report, err := sync.Run(context.Background(), testAccount)
	require.NoError(t, err)
	ingester.AssertExpectations(t)

	// now - 1h - 1m, truncated to the hour
	assert.True(t, report.Start.Time().Equal(base))
	assert.True(t, report.End.Time().Equal(at(3)))
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.Stats.Received)
	assert.Equal(t, 2, report.Stats.Ingested)
	assert.Equal(t, 1, report.Stats.Duplicates)

	assert.Equal(t, 3, observer.pages)
	assert.Equal(t, map[string]int{"ingested": 2, "duplicate": 1}, observer.outcomes)
}

func TestOrderSync_IngestionFailureStopsRun(t *testing.T) {
	page1 := []marketplace.OrderRow{order("a", at(1))}
	feed := newScriptedFeed(response{rows: page1}, response{rows: []marketplace.OrderRow{order("b", at(2))}})

	ingester := new(mockOrderIngester)
	ingester.On("IngestOrders", mock.Anything, testAccount, page1).
		Return(ingestion.Stats{Received: 1, Failed: 1}, marketplace.ErrPersistenceFailure).Once()

	sync := NewOrderSync(feed, ingester, OrderSyncConfig{}, testPolicy(&recordedSleeps{}), nil, nil)
	report, err := sync.RunSince(context.Background(), testAccount, marketplace.NewCursor(base))

	assert.ErrorIs(t, err, marketplace.ErrPersistenceFailure)
	assert.Equal(t, 0, report.Pages)
	assert.True(t, report.End.Time().Equal(base))
	assert.Len(t, feed.cursors(), 1)
	ingester.AssertExpectations(t)
}

func TestOrderSync_PassesByDayFlag(t *testing.T) {
	var queries []marketplace.OrderQuery
	feed := orderFeedFunc(func(_ context.Context, q marketplace.OrderQuery) ([]marketplace.OrderRow, error) {
		queries = append(queries, q)
		return nil, nil
	})

	sync := NewOrderSync(feed, new(mockOrderIngester), OrderSyncConfig{ByDay: true}, RetryPolicy{}, nil, nil)
	_, err := sync.RunSince(context.Background(), testAccount, marketplace.NewCursor(base))
	require.NoError(t, err)

	require.Len(t, queries, 1)
	assert.True(t, queries[0].ByDay)
	assert.Equal(t, testAccount, queries[0].Account)
}

type orderFeedFunc func(ctx context.Context, q marketplace.OrderQuery) ([]marketplace.OrderRow, error)

func (f orderFeedFunc) FetchOrders(ctx context.Context, q marketplace.OrderQuery) ([]marketplace.OrderRow, error) {
	return f(ctx, q)
}

func stock(barcode string, qty int, changed time.Time) marketplace.StockRow {
	return marketplace.StockRow{Barcode: barcode, Quantity: qty, LastChangeDate: changed}
}

func TestStockSync_CollectsWholeStreamBeforeIngesting(t *testing.T) {
	feed := &stockScript{pages: [][]marketplace.StockRow{
		{stock("B", 5, at(1)), stock("C", 0, at(2))},
		{stock("B", 3, at(4))},
	}}
	runAt := base.Add(36 * time.Hour)
	want := []marketplace.StockRow{stock("B", 5, at(1)), stock("C", 0, at(2)), stock("B", 3, at(4))}

	ingester := new(mockSnapshotIngester)
	ingester.On("IngestSnapshot", mock.Anything, testAccount, marketplace.NewCursor(runAt), want).
		Return(ingestion.Stats{Received: 3, Ingested: 2}, nil).Once()

	sync := NewStockSync(feed, ingester, StockSyncConfig{Lookback: 24 * time.Hour}, testPolicy(&recordedSleeps{}), nil, nil)
	report, err := sync.RunAt(context.Background(), testAccount, runAt)
	require.NoError(t, err)
	ingester.AssertExpectations(t)

	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 2, report.Stats.Ingested)
	// 36h - 24h - 1m truncated to the day
	assert.True(t, report.Start.Time().Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, feed.asked, 3)
}

func TestStockSync_StreamFailureWritesNothing(t *testing.T) {
	feed := &stockScript{
		pages: [][]marketplace.StockRow{{stock("B", 5, at(1))}},
		err:   &marketplace.RemoteError{Endpoint: "stocks", StatusCode: 502},
	}
	ingester := new(mockSnapshotIngester)

	sync := NewStockSync(feed, ingester, StockSyncConfig{}, testPolicy(&recordedSleeps{}), nil, nil)
	_, err := sync.RunAt(context.Background(), testAccount, base)

	_, remote := marketplace.IsRemote(err)
	assert.True(t, remote)
	ingester.AssertNotCalled(t, "IngestSnapshot", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStockSync_IngestionFailureIsReturned(t *testing.T) {
	feed := &stockScript{pages: [][]marketplace.StockRow{{stock("B", 5, at(1))}}}
	ingester := new(mockSnapshotIngester)
	ingester.On("IngestSnapshot", mock.Anything, testAccount, mock.Anything, mock.Anything).
		Return(ingestion.Stats{Received: 1, Failed: 1}, errors.New("db down")).Once()

	sync := NewStockSync(feed, ingester, StockSyncConfig{}, testPolicy(&recordedSleeps{}), nil, nil)
	report, err := sync.RunAt(context.Background(), testAccount, base)

	require.Error(t, err)
	assert.Equal(t, 1, report.Stats.Failed)
}
