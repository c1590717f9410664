package manufacture

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
	"github.com/erp/manufacture/internal/infrastructure/cache"
)

var testAccount = marketplace.MustAccountID("0190f6a4-5b3b-7c1e-9d2a-3f4e5a6b7c8d")

type fakeBatches struct {
	batches map[uuid.UUID]*manufacture.ProductionBatch
	err     error
}

func (f *fakeBatches) FindBatch(_ context.Context, id uuid.UUID) (*manufacture.ProductionBatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.batches[id]
	if !ok {
		return nil, manufacture.ErrBatchNotFound
	}
	return b, nil
}

type fakeSupplies struct {
	mu        sync.Mutex
	supplies  []*manufacture.Supply
	createErr error
}

func (f *fakeSupplies) FindAccepting(_ context.Context, account marketplace.AccountID) (*manufacture.Supply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.supplies {
		if s.Account == account && s.Status.AcceptsOrders() {
			return s, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeSupplies) Create(_ context.Context, supply *manufacture.Supply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.supplies = append(f.supplies, supply)
	return nil
}

func (f *fakeSupplies) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.supplies)
}

type fakeOrders map[uuid.UUID]*manufacture.WorkflowOrder

func (f fakeOrders) FindOrder(_ context.Context, id uuid.UUID) (*manufacture.WorkflowOrder, error) {
	o, ok := f[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

type fakePackages struct {
	mu       sync.Mutex
	packages []*manufacture.Package
	packed   map[uuid.UUID]bool
	saveErr  error

	// beforeSave runs once, outside the lock, on the next SaveAll
	beforeSave func() error
}

func newFakePackages() *fakePackages {
	return &fakePackages{packed: make(map[uuid.UUID]bool)}
}

func (f *fakePackages) IsOrderPacked(_ context.Context, orderID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packed[orderID], nil
}

func (f *fakePackages) SaveAll(_ context.Context, packages []*manufacture.Package) error {
	f.mu.Lock()
	hook := f.beforeSave
	f.beforeSave = nil
	f.mu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, p := range packages {
		f.packages = append(f.packages, p)
		for _, id := range p.Orders {
			f.packed[id] = true
		}
	}
	return nil
}

func (f *fakePackages) CountByBatch(_ context.Context, batchID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.packages {
		if p.BatchID == batchID {
			n += int64(len(p.Orders))
		}
	}
	return n, nil
}

type delayedEvent struct {
	delay time.Duration
	event shared.DomainEvent
}

type fakePublisher struct {
	mu        sync.Mutex
	scheduled []delayedEvent
	err       error
}

func (f *fakePublisher) pending() []delayedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.scheduled)
}

func (f *fakePublisher) PublishDelayed(_ context.Context, delay time.Duration, event shared.DomainEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, delayedEvent{delay: delay, event: event})
	return nil
}

func newTestDedup(t *testing.T) *dedup.Deduplicator {
	t.Helper()
	store := cache.NewInMemoryDedupStore()
	t.Cleanup(func() { _ = store.Close() })
	return dedup.New(store, dedup.NamespaceManufacture, nil)
}

// workflow is a completed FBS batch of two products and five orders, three of them packable
type workflow struct {
	batch     *manufacture.ProductionBatch
	batches   *fakeBatches
	supplies  *fakeSupplies
	orders    fakeOrders
	packages  *fakePackages
	publisher *fakePublisher
	packable  []uuid.UUID
}

func newWorkflow(t *testing.T, withSupply bool) *workflow {
	t.Helper()

	orders := fakeOrders{}
	add := func(status manufacture.OrderStatus, channel manufacture.CompletionChannel) uuid.UUID {
		id := uuid.New()
		orders[id] = &manufacture.WorkflowOrder{ID: id, Status: status, DeliveryChannel: channel}
		return id
	}

	a1 := add(manufacture.OrderStatusPackage, manufacture.ChannelWildberriesFBS)
	a2 := add(manufacture.OrderStatusPackage, manufacture.ChannelWildberriesFBS)
	a3 := add(manufacture.OrderStatusNew, manufacture.ChannelWildberriesFBS)
	b1 := add(manufacture.OrderStatusPackage, manufacture.ChannelWildberriesFBS)
	b2 := add(manufacture.OrderStatusPackage, manufacture.ChannelWildberriesFBO)

	batch := manufacture.NewProductionBatch(testAccount, manufacture.ChannelWildberriesFBS)
	batch.AddProduct(uuid.New(), 3, a1, a2, a3)
	batch.AddProduct(uuid.New(), 2, b1, b2, uuid.New())
	if err := batch.Complete(); err != nil {
		t.Fatalf("complete batch: %v", err)
	}

	w := &workflow{
		batch:     batch,
		batches:   &fakeBatches{batches: map[uuid.UUID]*manufacture.ProductionBatch{batch.ID: batch}},
		supplies:  &fakeSupplies{},
		orders:    orders,
		packages:  newFakePackages(),
		publisher: &fakePublisher{},
		packable:  []uuid.UUID{a1, a2, b1},
	}
	if withSupply {
		w.supplies.supplies = append(w.supplies.supplies, manufacture.NewSupply(testAccount))
	}
	return w
}

func (w *workflow) event() *manufacture.BatchCompletedEvent {
	return manufacture.NewBatchCompletedEvent(w.batch.ID, w.batch.Account, w.batch.Channel)
}

func (w *workflow) orchestrator(d *dedup.Deduplicator) *CompletionOrchestrator {
	return w.orchestratorWith(d, OrchestratorConfig{})
}

func (w *workflow) orchestratorWith(d *dedup.Deduplicator, cfg OrchestratorConfig) *CompletionOrchestrator {
	return NewCompletionOrchestrator(w.batches, w.supplies, w.orders, w.packages, w.publisher, d, cfg, nil)
}
