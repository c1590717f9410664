package manufacture

import (
	"context"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// BatchReader reads production batches. Returns ErrBatchNotFound for unknown ids.
type BatchReader interface {
	FindBatch(ctx context.Context, id uuid.UUID) (*ProductionBatch, error)
}

// BatchRepository is BatchReader plus persistence of state changes
type BatchRepository interface {
	BatchReader
	Save(ctx context.Context, batch *ProductionBatch) error
	// InProgressProducts returns product identities of open batches for account and channel
	InProgressProducts(ctx context.Context, account marketplace.AccountID, channel CompletionChannel) (map[uuid.UUID]bool, error)
}

// SupplyRepository reads and opens supplies
type SupplyRepository interface {
	// FindAccepting returns a new-or-open supply of account, or shared.ErrNotFound
	FindAccepting(ctx context.Context, account marketplace.AccountID) (*Supply, error)
	Create(ctx context.Context, supply *Supply) error
}

// OrderReader reads workflow orders. Returns shared.ErrNotFound for unknown ids.
type OrderReader interface {
	FindOrder(ctx context.Context, id uuid.UUID) (*WorkflowOrder, error)
}

// PackageRepository persists packing units
type PackageRepository interface {
	IsOrderPacked(ctx context.Context, orderID uuid.UUID) (bool, error)
	// SaveAll persists every package in one transaction
	SaveAll(ctx context.Context, packages []*Package) error
	CountByBatch(ctx context.Context, batchID uuid.UUID) (int64, error)
}
