package manufacture

import (
	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/domain/shared"
)

const (
	// EventTypeBatchCompleted is published when a production batch reaches completed
	EventTypeBatchCompleted = "manufacture.batch.completed"

	AggregateTypeBatch = "ProductionBatch"
)

// BatchCompletedEvent announces a batch completion. Handlers re-read the batch
// since the event may be delivered more than once and out of order.
type BatchCompletedEvent struct {
	shared.BaseDomainEvent
	BatchID uuid.UUID             `json:"batch_id"`
	Account marketplace.AccountID `json:"account"`
	Channel CompletionChannel     `json:"channel"`

	// Requeues counts how often a handler put the event back to wait
	Requeues int `json:"requeues,omitempty"`
}

// NewBatchCompletedEvent creates a BatchCompletedEvent
func NewBatchCompletedEvent(batchID uuid.UUID, account marketplace.AccountID, channel CompletionChannel) *BatchCompletedEvent {
	return &BatchCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchCompleted, AggregateTypeBatch, batchID),
		BatchID:         batchID,
		Account:         account,
		Channel:         channel,
	}
}

// Requeued returns a copy of e for the next wait round
func (e *BatchCompletedEvent) Requeued() *BatchCompletedEvent {
	next := *e
	next.Requeues++
	return &next
}
