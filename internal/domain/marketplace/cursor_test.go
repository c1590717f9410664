package marketplace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCursor_Advance(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewCursor(base)

	t.Run("moves forward", func(t *testing.T) {
		next := c.Advance(base.Add(time.Minute))
		assert.True(t, next.Time().Equal(base.Add(time.Minute)))
	})

	t.Run("never regresses", func(t *testing.T) {
		next := c.Advance(base.Add(-time.Hour))
		assert.True(t, next.Equal(c))
	})

	t.Run("same instant is unchanged", func(t *testing.T) {
		next := c.Advance(base)
		assert.True(t, next.Equal(c))
	})
}

func TestCursorFromLookback(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 34, 56, 0, time.UTC)

	tests := []struct {
		name     string
		lookback time.Duration
		want     time.Time
	}{
		{"minutes", 15 * time.Minute, time.Date(2025, 3, 10, 12, 18, 0, 0, time.UTC)},
		{"hours", 2 * time.Hour, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)},
		{"days", 48 * time.Hour, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CursorFromLookback(now, tt.lookback)
			assert.True(t, got.Time().Equal(tt.want), "got %s want %s", got.Time(), tt.want)
		})
	}
}

func TestCursor_String(t *testing.T) {
	c := NewCursor(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-03-10T12:00:00Z", c.String())
}
