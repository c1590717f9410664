package manufacture

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
)

var (
	ErrInvalidBatchTransition = errors.New("manufacture: invalid batch status transition")
	ErrBatchNotFound          = errors.New("manufacture: production batch not found")
	ErrUnknownChannel         = errors.New("manufacture: unknown completion channel")
)

// ---------------------------------------------------------------------------
// BatchStatus
// ---------------------------------------------------------------------------

// BatchStatus is the state of a production batch: open -> completed -> closed, or open -> closed
type BatchStatus string

const (
	BatchStatusOpen      BatchStatus = "open"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusClosed    BatchStatus = "closed"
)

// IsValid returns true if the status is valid
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusOpen, BatchStatusCompleted, BatchStatusClosed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is reachable from s
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchStatusOpen:
		return next == BatchStatusCompleted || next == BatchStatusClosed
	case BatchStatusCompleted:
		return next == BatchStatusClosed
	default:
		return false
	}
}

// IsTerminal returns true for closed batches
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusClosed
}

// String returns the string representation of BatchStatus
func (s BatchStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// CompletionChannel
// ---------------------------------------------------------------------------

// CompletionChannel tags which marketplace delivery channel a batch feeds
type CompletionChannel string

const (
	ChannelWildberriesFBS CompletionChannel = "wildberries-fbs"
	ChannelWildberriesFBO CompletionChannel = "wildberries-fbo"
)

// ParseCompletionChannel validates s as a CompletionChannel
func ParseCompletionChannel(s string) (CompletionChannel, error) {
	c := CompletionChannel(s)
	if !c.IsValid() {
		return "", ErrUnknownChannel
	}
	return c, nil
}

// IsValid returns true if the channel is known
func (c CompletionChannel) IsValid() bool {
	return c == ChannelWildberriesFBS || c == ChannelWildberriesFBO
}

// String returns the string representation of CompletionChannel
func (c CompletionChannel) String() string {
	return string(c)
}

// ---------------------------------------------------------------------------
// ProductionBatch
// ---------------------------------------------------------------------------

// BatchProduct is one product of a batch with the workflow orders it was produced for
type BatchProduct struct {
	Invariable uuid.UUID
	Total      int
	Orders     []uuid.UUID
}

// ProductionBatch is a manufacturing unit of work
type ProductionBatch struct {
	ID        uuid.UUID
	Account   marketplace.AccountID
	Status    BatchStatus
	Channel   CompletionChannel
	Products  []BatchProduct
	UpdatedAt time.Time

	shared.BaseAggregateRoot
}

// NewProductionBatch creates an open batch for channel
func NewProductionBatch(account marketplace.AccountID, channel CompletionChannel) *ProductionBatch {
	return &ProductionBatch{
		ID:        uuid.New(),
		Account:   account,
		Status:    BatchStatusOpen,
		Channel:   channel,
		UpdatedAt: time.Now().UTC(),
	}
}

// AddProduct attaches a product and the orders it covers
func (b *ProductionBatch) AddProduct(invariable uuid.UUID, total int, orders ...uuid.UUID) {
	b.Products = append(b.Products, BatchProduct{Invariable: invariable, Total: total, Orders: orders})
}

// Complete moves the batch to completed and records a BatchCompletedEvent
func (b *ProductionBatch) Complete() error {
	if err := b.transition(BatchStatusCompleted); err != nil {
		return err
	}
	b.RecordEvent(NewBatchCompletedEvent(b.ID, b.Account, b.Channel))
	return nil
}

// Close moves the batch to closed
func (b *ProductionBatch) Close() error {
	return b.transition(BatchStatusClosed)
}

// IsInProgress returns true for batches still being manufactured
func (b *ProductionBatch) IsInProgress() bool {
	return b.Status == BatchStatusOpen
}

// IsCompletedFor reports whether the batch is completed for exactly channel
func (b *ProductionBatch) IsCompletedFor(channel CompletionChannel) bool {
	return b.Status == BatchStatusCompleted && b.Channel == channel
}

func (b *ProductionBatch) transition(next BatchStatus) error {
	if !b.Status.CanTransitionTo(next) {
		return ErrInvalidBatchTransition
	}
	b.Status = next
	b.UpdatedAt = time.Now().UTC()
	return nil
}

var _ shared.AggregateRoot = (*ProductionBatch)(nil)
