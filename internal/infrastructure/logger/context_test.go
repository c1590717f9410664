package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestWithContext_RoundTrip(t *testing.T) {
	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestIdentifiers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Account(ctx))
	assert.Empty(t, Stream(ctx))

	ctx = WithStream(WithAccount(WithRequestID(ctx, "req-1"), "seller-1"), "stocks")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "seller-1", Account(ctx))
	assert.Equal(t, "stocks", Stream(ctx))
}

func TestFields(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		assert.Empty(t, Fields(context.Background()))
		assert.Empty(t, TraceID(context.Background()))
	})

	t.Run("span and identifiers", func(t *testing.T) {
		ctx := WithAccount(spanContext(t), "seller-1")

		enc := zapcore.NewMapObjectEncoder()
		for _, f := range Fields(ctx) {
			f.AddTo(enc)
		}

		assert.Equal(t, map[string]any{
			"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
			"span_id":  "00f067aa0ba902b7",
			"account":  "seller-1",
		}, enc.Fields)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceID(ctx))
	})
}

func TestL_EnrichesStoredLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(spanContext(t), zap.New(core))
	ctx = WithStream(WithRequestID(ctx, "req-9"), "orders")

	L(ctx).Info("page fetched", zap.Int("rows", 10))

	require.Len(t, recorded.All(), 1)
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "orders", fields["stream"])
	assert.Equal(t, int64(10), fields["rows"])
	assert.NotContains(t, fields, "account")
}

func TestEnrich_NoFieldsKeepsLogger(t *testing.T) {
	l := zap.NewExample()
	assert.Same(t, l, Enrich(context.Background(), l))
	assert.NotNil(t, Enrich(context.Background(), nil))
}
