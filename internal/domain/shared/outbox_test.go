package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outboxTestEvent struct {
	BaseDomainEvent
}

func newOutboxTestEntry(now time.Time) *OutboxEntry {
	event := &outboxTestEvent{BaseDomainEvent: NewBaseDomainEvent("test.completed", "TestAggregate", uuid.New())}
	return NewOutboxEntry(event, []byte(`{}`), now)
}

func TestNewOutboxEntry(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	entry := newOutboxTestEntry(now)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.NotEqual(t, entry.ID, entry.EventID)
	assert.Equal(t, "test.completed", entry.EventType)
	assert.Equal(t, "TestAggregate", entry.AggregateType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultOutboxMaxAttempts, entry.MaxAttempts)
	assert.Equal(t, now, entry.NextAttemptAt, "due immediately")
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	entry := newOutboxTestEntry(now)
	cause := errors.New("event bus: stopping")

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		32 * time.Second, 64 * time.Second, 128 * time.Second, 256 * time.Second,
		5 * time.Minute, 5 * time.Minute,
	}
	for i, backoff := range want {
		entry.MarkFailed(cause, now)
		require.Equal(t, i+1, entry.Attempts)
		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, now.Add(backoff), entry.NextAttemptAt, "attempt %d", entry.Attempts)
		assert.Equal(t, cause.Error(), entry.LastError)
		assert.False(t, entry.IsDead())
	}

	entry.MarkFailed(cause, now)
	assert.Equal(t, DefaultOutboxMaxAttempts, entry.Attempts)
	assert.True(t, entry.IsDead())
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	entry := newOutboxTestEntry(now)
	entry.MarkFailed(errors.New("transient"), now)

	sent := now.Add(time.Second)
	entry.MarkSent(sent)
	assert.Equal(t, OutboxStatusSent, entry.Status)
	require.NotNil(t, entry.SentAt)
	assert.Equal(t, sent, *entry.SentAt)
	assert.Empty(t, entry.LastError)
	assert.False(t, entry.IsDead())
}
