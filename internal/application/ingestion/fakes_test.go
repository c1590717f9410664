package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/domain/ledger"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/infrastructure/cache"
)

var testAccount = marketplace.MustAccountID("0190f6a4-5b3b-7c1e-9d2a-3f4e5a6b7c8d")

type fakeResolver struct {
	products map[string]ledger.ProductIdentity
	err      error
}

func newFakeResolver(barcodes ...string) *fakeResolver {
	r := &fakeResolver{products: make(map[string]ledger.ProductIdentity)}
	for _, b := range barcodes {
		r.products[b] = ledger.ProductIdentity{Invariable: uuid.New(), Product: uuid.New(), Account: testAccount}
	}
	return r
}

func (r *fakeResolver) Resolve(_ context.Context, _ marketplace.AccountID, barcode string) (ledger.ProductIdentity, error) {
	if r.err != nil {
		return ledger.ProductIdentity{}, r.err
	}
	p, ok := r.products[barcode]
	if !ok {
		return ledger.ProductIdentity{}, ledger.ErrProductNotFound
	}
	return p, nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*ledger.OrderRecord
	failWrite error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*ledger.OrderRecord)}
}

func (r *fakeOrderRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.orders[id]
	return ok, nil
}

func (r *fakeOrderRepo) Create(_ context.Context, order *ledger.OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	if _, ok := r.orders[order.ID]; !ok {
		r.orders[order.ID] = order
	}
	return nil
}

func (r *fakeOrderRepo) Count(_ context.Context, _ marketplace.AccountID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.orders)), nil
}

func (r *fakeOrderRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, o := range r.orders {
		if o.Date.Before(cutoff) {
			delete(r.orders, id)
			n++
		}
	}
	return n, nil
}

type fakeStockRepo struct {
	mu        sync.Mutex
	stocks    map[uuid.UUID]ledger.StockRecord
	writes    int
	failWrite error
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{stocks: make(map[uuid.UUID]ledger.StockRecord)}
}

func (r *fakeStockRepo) Upsert(_ context.Context, stock *ledger.StockRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	r.writes++
	r.stocks[stock.Invariable] = *stock
	return nil
}

func (r *fakeStockRepo) FindByAccount(_ context.Context, account marketplace.AccountID) ([]ledger.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.StockRecord, 0, len(r.stocks))
	for _, s := range r.stocks {
		if s.Account == account {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStockRepo) quantity(id uuid.UUID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stocks[id]
	return s.Quantity, ok
}

func newTestDedup(t *testing.T) *dedup.Deduplicator {
	t.Helper()
	store := cache.NewInMemoryDedupStore()
	t.Cleanup(func() { _ = store.Close() })
	return dedup.New(store, dedup.NamespaceManufacture, nil)
}

var errDatabaseDown = errors.New("database down")
