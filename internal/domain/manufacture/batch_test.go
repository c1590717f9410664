package manufacture

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

var testAccount = marketplace.MustAccountID("0190f6a4-5b3b-7c1e-9d2a-3f4e5a6b7c8d")

func TestBatchStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to BatchStatus
		want     bool
	}{
		{BatchStatusOpen, BatchStatusCompleted, true},
		{BatchStatusOpen, BatchStatusClosed, true},
		{BatchStatusCompleted, BatchStatusClosed, true},
		{BatchStatusCompleted, BatchStatusOpen, false},
		{BatchStatusClosed, BatchStatusOpen, false},
		{BatchStatusClosed, BatchStatusCompleted, false},
		{BatchStatusOpen, BatchStatusOpen, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestProductionBatch_Complete(t *testing.T) {
	batch := NewProductionBatch(testAccount, ChannelWildberriesFBS)
	batch.AddProduct(uuid.New(), 2, uuid.New(), uuid.New())

	require.NoError(t, batch.Complete())
	assert.True(t, batch.IsCompletedFor(ChannelWildberriesFBS))
	assert.False(t, batch.IsCompletedFor(ChannelWildberriesFBO))

	events := batch.DomainEvents()
	require.Len(t, events, 1)
	evt, ok := events[0].(*BatchCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, batch.ID, evt.BatchID)
	assert.Equal(t, EventTypeBatchCompleted, evt.EventType())

	assert.ErrorIs(t, batch.Complete(), ErrInvalidBatchTransition)
	require.NoError(t, batch.Close())
	assert.True(t, batch.Status.IsTerminal())
	assert.ErrorIs(t, batch.Close(), ErrInvalidBatchTransition)
}

func TestProductionBatch_AbandonedBatchCannotComplete(t *testing.T) {
	batch := NewProductionBatch(testAccount, ChannelWildberriesFBS)
	require.NoError(t, batch.Close())
	assert.ErrorIs(t, batch.Complete(), ErrInvalidBatchTransition)
	assert.Empty(t, batch.DomainEvents())
}

func TestWorkflowOrder_AwaitsPackaging(t *testing.T) {
	o := &WorkflowOrder{ID: uuid.New(), Status: OrderStatusPackage, DeliveryChannel: ChannelWildberriesFBS}
	assert.True(t, o.AwaitsPackaging(ChannelWildberriesFBS))
	assert.False(t, o.AwaitsPackaging(ChannelWildberriesFBO))

	o.Status = OrderStatusNew
	assert.False(t, o.AwaitsPackaging(ChannelWildberriesFBS))
}

func TestParseCompletionChannel(t *testing.T) {
	c, err := ParseCompletionChannel("wildberries-fbs")
	require.NoError(t, err)
	assert.Equal(t, ChannelWildberriesFBS, c)

	_, err = ParseCompletionChannel("ozon")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
