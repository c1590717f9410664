package marketplace

import "time"

// Cursor is the watermark of an incremental feed: the dateFrom value of the next request.
// Cursors only move forward.
type Cursor struct {
	at time.Time
}

// NewCursor returns a cursor positioned at t
func NewCursor(t time.Time) Cursor {
	return Cursor{at: t}
}

// CursorFromLookback positions a cursor at now - lookback - 1 minute,
// truncated to the lookback's granularity (minute, hour or day).
func CursorFromLookback(now time.Time, lookback time.Duration) Cursor {
	from := now.Add(-lookback).Add(-time.Minute)
	switch {
	case lookback >= 24*time.Hour && lookback%(24*time.Hour) == 0:
		from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	case lookback >= time.Hour && lookback%time.Hour == 0:
		from = from.Truncate(time.Hour)
	default:
		from = from.Truncate(time.Minute)
	}
	return Cursor{at: from}
}

// Time returns the cursor position
func (c Cursor) Time() time.Time {
	return c.at
}

// IsZero returns true if the cursor was never positioned
func (c Cursor) IsZero() bool {
	return c.at.IsZero()
}

// Advance returns the cursor moved to t, or c itself when t is not after it
func (c Cursor) Advance(t time.Time) Cursor {
	if t.After(c.at) {
		return Cursor{at: t}
	}
	return c
}

// Equal reports whether both cursors point at the same instant
func (c Cursor) Equal(other Cursor) bool {
	return c.at.Equal(other.at)
}

// String formats the cursor the way the upstream expects dateFrom
func (c Cursor) String() string {
	return c.at.Format(time.RFC3339)
}
