package ingestion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

func orderRow(id, barcode string) marketplace.OrderRow {
	return marketplace.OrderRow{
		ID:             id,
		Barcode:        barcode,
		LastChangeDate: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestOrderIngestor_IdempotentAcrossDeliveries(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOrderRepo()
	ingestor := NewOrderIngestor(newFakeResolver("200"), repo, newTestDedup(t), Config{}, nil)

	row := orderRow("srid-1", "200")
	for n := 0; n < 3; n++ {
		_, err := ingestor.IngestOrders(ctx, testAccount, []marketplace.OrderRow{row})
		require.NoError(t, err)
	}

	count, _ := repo.Count(ctx, testAccount)
	assert.Equal(t, int64(1), count)
}

func TestOrderIngestor_ConcurrentDuplicatesInOnePage(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOrderRepo()
	ingestor := NewOrderIngestor(newFakeResolver("200"), repo, newTestDedup(t), Config{Concurrency: 16}, nil)

	rows := make([]marketplace.OrderRow, 20)
	for i := range rows {
		rows[i] = orderRow("srid-1", "200")
	}

	stats, err := ingestor.IngestOrders(ctx, testAccount, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ingested)
	assert.Equal(t, 19, stats.Duplicates)

	count, _ := repo.Count(ctx, testAccount)
	assert.Equal(t, int64(1), count)
}

func TestOrderIngestor_PermanentFailuresDoNotAbortPage(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOrderRepo()
	ingestor := NewOrderIngestor(newFakeResolver("200", "201"), repo, newTestDedup(t), Config{}, nil)

	rows := []marketplace.OrderRow{
		orderRow("srid-1", "200"),
		orderRow("srid-2", "999"), // unknown barcode
		orderRow("", "200"),       // no order id
		{ID: "srid-3", Barcode: "201"},
		orderRow("srid-4", "201"),
	}

	stats, err := ingestor.IngestOrders(ctx, testAccount, rows)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Received)
	assert.Equal(t, 2, stats.Ingested)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 2, stats.Invalid)
	assert.Equal(t, 3, stats.Dropped())

	count, _ := repo.Count(ctx, testAccount)
	assert.Equal(t, int64(2), count)
}

func TestOrderIngestor_UnresolvedIsNotMarked(t *testing.T) {
	ctx := context.Background()
	resolver := newFakeResolver()
	repo := newFakeOrderRepo()
	ingestor := NewOrderIngestor(resolver, repo, newTestDedup(t), Config{}, nil)

	row := orderRow("srid-1", "200")
	stats, err := ingestor.IngestOrders(ctx, testAccount, []marketplace.OrderRow{row})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unresolved)

	// the product appears later; the same order is picked up by the next run
	resolver.products = newFakeResolver("200").products
	stats, err = ingestor.IngestOrders(ctx, testAccount, []marketplace.OrderRow{row})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ingested)
}

func TestOrderIngestor_PersistenceFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOrderRepo()
	repo.failWrite = errDatabaseDown
	ingestor := NewOrderIngestor(newFakeResolver("200"), repo, newTestDedup(t), Config{}, nil)

	row := orderRow("srid-1", "200")
	_, err := ingestor.IngestOrders(ctx, testAccount, []marketplace.OrderRow{row})
	require.Error(t, err)
	assert.ErrorIs(t, err, marketplace.ErrPersistenceFailure)
	assert.False(t, marketplace.IsPermanent(err))

	repo.failWrite = nil
	stats, err := ingestor.IngestOrders(ctx, testAccount, []marketplace.OrderRow{row})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ingested)
}

func TestOrderIngestor_ResolverOutageFailsPage(t *testing.T) {
	resolver := newFakeResolver("200")
	resolver.err = fmt.Errorf("catalog unavailable")
	ingestor := NewOrderIngestor(resolver, newFakeOrderRepo(), newTestDedup(t), Config{}, nil)

	_, err := ingestor.IngestOrders(context.Background(), testAccount, []marketplace.OrderRow{orderRow("srid-1", "200")})
	require.Error(t, err)
	assert.False(t, marketplace.IsPermanent(err))
}

func TestOrderIngestor_ExistingLedgerRowIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newFakeOrderRepo()
	resolver := newFakeResolver("200")

	// first ingestor writes, a second one with a fresh dedup store sees the ledger row
	first := NewOrderIngestor(resolver, repo, newTestDedup(t), Config{}, nil)
	_, err := first.IngestOrders(ctx, testAccount, []marketplace.OrderRow{orderRow("srid-1", "200")})
	require.NoError(t, err)

	second := NewOrderIngestor(resolver, repo, newTestDedup(t), Config{}, nil)
	stats, err := second.IngestOrders(ctx, testAccount, []marketplace.OrderRow{orderRow("srid-1", "200")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Duplicates)

	count, _ := repo.Count(ctx, testAccount)
	assert.Equal(t, int64(1), count)
}
