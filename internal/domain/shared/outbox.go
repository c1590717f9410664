package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusFailed  OutboxStatus = "failed"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusDead    OutboxStatus = "dead"
)

const (
	DefaultOutboxMaxAttempts = 12
	outboxBaseBackoff        = time.Second
	outboxMaxBackoff         = 5 * time.Minute
)

// OutboxEntry is a domain event stored in the transaction that produced it,
// waiting to be handed to the event bus.
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	MaxAttempts   int
	LastError     string
	NextAttemptAt time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
}

// NewOutboxEntry creates a pending entry for event, due immediately
func NewOutboxEntry(event DomainEvent, payload []byte, now time.Time) *OutboxEntry {
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxAttempts:   DefaultOutboxMaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// MarkSent records a successful hand-off
func (e *OutboxEntry) MarkSent(now time.Time) {
	e.Status = OutboxStatusSent
	e.SentAt = &now
	e.LastError = ""
}

// MarkFailed records a failed hand-off. The next attempt backs off exponentially
// from one second up to five minutes; after MaxAttempts the entry is dead.
func (e *OutboxEntry) MarkFailed(cause error, now time.Time) {
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	if e.Attempts >= e.MaxAttempts {
		e.Status = OutboxStatusDead
		return
	}
	e.Status = OutboxStatusFailed

	backoff := outboxMaxBackoff
	if shift := e.Attempts - 1; shift < 9 {
		backoff = min(outboxBaseBackoff<<shift, outboxMaxBackoff)
	}
	e.NextAttemptAt = now.Add(backoff)
}

// IsDead reports whether the entry is no longer retried
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository is the relay's view of the outbox table. Entries are appended
// by the repositories of the producing aggregates, inside their transactions.
type OutboxRepository interface {
	// ClaimDue returns up to limit pending or failed entries due at now and hides
	// them from other relays for hold
	ClaimDue(ctx context.Context, now time.Time, hold time.Duration, limit int) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteSentBefore removes entries sent before cutoff
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventCodec turns domain events into outbox payloads and back
type EventCodec interface {
	Encode(event DomainEvent) ([]byte, error)
	Decode(eventType string, payload []byte) (DomainEvent, error)
}
