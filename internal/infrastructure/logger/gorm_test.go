package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level zapcore.Level, gormLevel gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(level)
	return NewGormLogger(zap.New(core), gormLevel, opts...), recorded
}

func staticSQL(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Options(t *testing.T) {
	gl, _ := newObservedGormLogger(zapcore.InfoLevel, gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)

	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)
	assert.Equal(t, defaultMaxSQLLength, gl.maxSQLLength)
}

func TestGormLogger_TraceTruncatesLongStatements(t *testing.T) {
	gl, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Info, WithMaxSQLLength(16))
	sql := "INSERT INTO stocks (account_id,invariable,quantity) VALUES ($1,$2,$3),($4,$5,$6)"

	gl.Trace(context.Background(), time.Now(), staticSQL(sql, 2), nil)

	require.Len(t, recorded.All(), 1)
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, sql[:16], fields["sql"])
	assert.Equal(t, int64(len(sql)), fields["sql_length"])
}

func TestGormLogger_TraceSlowCarriesThreshold(t *testing.T) {
	gl, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Warn, WithSlowThreshold(time.Millisecond))

	gl.Trace(context.Background(), time.Now().Add(-time.Second), staticSQL("SELECT 1", 1), nil)

	require.Len(t, recorded.All(), 1)
	assert.Equal(t, time.Millisecond, recorded.All()[0].ContextMap()["threshold"])
}

func TestGormLogger_TraceNothingBelowInfo(t *testing.T) {
	gl, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Warn)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		t.Fatal("sql must not be rendered for a fast statement at warn")
		return "", 0
	}, nil)

	assert.Empty(t, recorded.All())
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := newObservedGormLogger(zapcore.InfoLevel, gormlogger.Info)

	changed, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Warn, changed.logLevel)
}

func TestGormLogger_MessagesRespectLevel(t *testing.T) {
	gl, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Warn)
	ctx := WithAccount(context.Background(), "seller-1")

	gl.Info(ctx, "info %d", 1)
	gl.Warn(ctx, "warn %d", 2)
	gl.Error(ctx, "error %d", 3)

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "warn 2", logs[0].Message)
	assert.Equal(t, "error 3", logs[1].Message)
	assert.Equal(t, "seller-1", logs[1].ContextMap()["account"])
}

func TestGormLogger_Trace(t *testing.T) {
	boom := errors.New("duplicate key")

	tests := []struct {
		name      string
		gormLevel gormlogger.LogLevel
		begin     time.Time
		err       error
		wantMsg   string
		wantLevel zapcore.Level
	}{
		{
			name:      "error",
			gormLevel: gormlogger.Error,
			begin:     time.Now(),
			err:       boom,
			wantMsg:   "SQL statement failed",
			wantLevel: zapcore.ErrorLevel,
		},
		{
			name:      "slow query",
			gormLevel: gormlogger.Warn,
			begin:     time.Now().Add(-time.Second),
			wantMsg:   "Slow SQL statement",
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:      "plain query at info",
			gormLevel: gormlogger.Info,
			begin:     time.Now(),
			wantMsg:   "SQL statement",
			wantLevel: zapcore.DebugLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, recorded := newObservedGormLogger(zapcore.DebugLevel, tt.gormLevel)

			gl.Trace(context.Background(), tt.begin, staticSQL("SELECT 1", 3), tt.err)

			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.wantMsg, logs[0].Message)
			assert.Equal(t, tt.wantLevel, logs[0].Level)
			assert.Equal(t, "SELECT 1", logs[0].ContextMap()["sql"])
			assert.Equal(t, int64(3), logs[0].ContextMap()["rows"])
		})
	}
}

func TestGormLogger_TraceSkipsRecordNotFound(t *testing.T) {
	gl, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), staticSQL("SELECT * FROM orders", 0), gormlogger.ErrRecordNotFound)

	assert.Empty(t, recorded.All())
}

func TestGormLogger_TraceSilent(t *testing.T) {
	gl, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		t.Fatal("sql must not be rendered when silent")
		return "", 0
	}, errors.New("ignored"))

	assert.Empty(t, recorded.All())
}

func TestGormLogger_TraceCarriesContextFields(t *testing.T) {
	gl, recorded := newObservedGormLogger(zapcore.DebugLevel, gormlogger.Info)
	ctx := WithStream(WithAccount(WithRequestID(context.Background(), "req-7"), "seller-1"), "orders")

	gl.Trace(ctx, time.Now(), staticSQL("INSERT INTO orders", 1), nil)

	require.Len(t, recorded.All(), 1)
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "seller-1", fields["account"])
	assert.Equal(t, "orders", fields["stream"])
}

func TestMapGormLogLevel(t *testing.T) {
	cases := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"WARN":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapGormLogLevel(in), in)
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
