package feedsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

var (
	testAccount = marketplace.MustAccountID("0190f6a4-5b3b-7c1e-9d2a-3f4e5a6b7c8d")
	base        = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func order(id string, changed time.Time) marketplace.OrderRow {
	return marketplace.OrderRow{ID: id, Barcode: "200", LastChangeDate: changed}
}

type response struct {
	rows []marketplace.OrderRow
	err  error
}

// scriptedFeed answers requests from a fixed script and records the cursors it was asked for.
// Once the script runs out it keeps answering with empty pages.
type scriptedFeed struct {
	mu        sync.Mutex
	responses []response
	requested []marketplace.Cursor
}

func newScriptedFeed(responses ...response) *scriptedFeed {
	return &scriptedFeed{responses: responses}
}

func (f *scriptedFeed) fetch(_ context.Context, from marketplace.Cursor) ([]marketplace.OrderRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, from)
	if len(f.responses) == 0 {
		return nil, nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.rows, r.err
}

func (f *scriptedFeed) FetchOrders(ctx context.Context, q marketplace.OrderQuery) ([]marketplace.OrderRow, error) {
	return f.fetch(ctx, q.From)
}

func (f *scriptedFeed) cursors() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.requested))
	for i, c := range f.requested {
		out[i] = c.Time()
	}
	return out
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testPolicy(sleeps *recordedSleeps) RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Minute, Sleep: sleeps.sleep}
}

func collect(pages *[]Page[marketplace.OrderRow]) PageHandler[marketplace.OrderRow] {
	return func(_ context.Context, page Page[marketplace.OrderRow]) error {
		*pages = append(*pages, page)
		return nil
	}
}

func TestPager_StreamsUntilEmptyPage(t *testing.T) {
	feed := newScriptedFeed(
		response{rows: []marketplace.OrderRow{order("a", at(1)), order("b", at(2))}},
		response{rows: []marketplace.OrderRow{order("c", at(5))}},
		response{},
	)
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(&recordedSleeps{}), nil, nil)

	var pages []Page[marketplace.OrderRow]
	result, err := pager.Stream(context.Background(), marketplace.NewCursor(base), collect(&pages))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Records)
	assert.False(t, result.Stalled)
	assert.True(t, result.Cursor.Time().Equal(at(5)))
	assert.Equal(t, []time.Time{base, at(2), at(5)}, feed.cursors())

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.True(t, pages[0].Next.Time().Equal(at(2)))
}

func TestPager_CursorIsMaxChangeTimeAndNeverRegresses(t *testing.T) {
	feed := newScriptedFeed(
		response{rows: []marketplace.OrderRow{order("a", at(7)), order("b", at(3))}},
		response{rows: []marketplace.OrderRow{order("c", at(4)), order("d", at(9))}},
	)
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(&recordedSleeps{}), nil, nil)

	var pages []Page[marketplace.OrderRow]
	_, err := pager.Stream(context.Background(), marketplace.NewCursor(base), collect(&pages))
	require.NoError(t, err)

	require.Len(t, pages, 2)
	assert.True(t, pages[0].Next.Time().Equal(at(7)))
	assert.True(t, pages[1].Next.Time().Equal(at(9)))
	for _, p := range pages {
		assert.False(t, p.Next.Time().Before(p.From.Time()))
	}
}

func TestPager_TerminatesWhenCursorStalls(t *testing.T) {
	start := marketplace.NewCursor(at(10))
	feed := newScriptedFeed(
		response{rows: []marketplace.OrderRow{order("a", at(10)), order("b", at(10))}},
		response{rows: []marketplace.OrderRow{order("a", at(10))}},
	)
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(&recordedSleeps{}), nil, nil)

	var pages []Page[marketplace.OrderRow]
	result, err := pager.Stream(context.Background(), start, collect(&pages))
	require.NoError(t, err)

	assert.True(t, result.Stalled)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, pages, 1, "records of the stalled page are still handed over")
	assert.Len(t, feed.cursors(), 1)
}

func TestPager_OlderRecordsOnlyCountAsStall(t *testing.T) {
	feed := newScriptedFeed(
		response{rows: []marketplace.OrderRow{order("a", at(-5))}},
	)
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(&recordedSleeps{}), nil, nil)

	result, err := pager.Stream(context.Background(), marketplace.NewCursor(base), collect(new([]Page[marketplace.OrderRow])))
	require.NoError(t, err)
	assert.True(t, result.Stalled)
	assert.True(t, result.Cursor.Time().Equal(base))
}

func TestPager_HandlerFailureKeepsCursor(t *testing.T) {
	feed := newScriptedFeed(
		response{rows: []marketplace.OrderRow{order("a", at(1))}},
		response{rows: []marketplace.OrderRow{order("b", at(2))}},
	)
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(&recordedSleeps{}), nil, nil)

	boom := errors.New("ledger unavailable")
	result, err := pager.Stream(context.Background(), marketplace.NewCursor(base), func(_ context.Context, page Page[marketplace.OrderRow]) error {
		if page.Number == 2 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, result.Pages)
	assert.True(t, result.Cursor.Time().Equal(at(1)))
}

func TestPager_RemoteErrorEndsStream(t *testing.T) {
	remote := &marketplace.RemoteError{Endpoint: "orders", StatusCode: 500, Body: "oops"}
	feed := newScriptedFeed(
		response{rows: []marketplace.OrderRow{order("a", at(1))}},
		response{err: remote},
	)
	sleeps := &recordedSleeps{}
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(sleeps), nil, nil)

	result, err := pager.Stream(context.Background(), marketplace.NewCursor(base), collect(new([]Page[marketplace.OrderRow])))
	require.Error(t, err)

	got, ok := marketplace.IsRemote(err)
	require.True(t, ok)
	assert.Equal(t, 500, got.StatusCode)
	assert.True(t, result.Cursor.Time().Equal(at(1)))
	assert.Empty(t, sleeps.delays, "remote errors are not retried")
}

func TestPager_RateLimitRetriesSameRequest(t *testing.T) {
	feed := newScriptedFeed(
		response{err: &marketplace.RateLimitedError{Endpoint: "orders", RetryAfter: 90 * time.Second}},
		response{err: &marketplace.RateLimitedError{Endpoint: "orders"}},
		response{rows: []marketplace.OrderRow{order("a", at(1))}},
	)
	sleeps := &recordedSleeps{}
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(sleeps), nil, nil)

	result, err := pager.Stream(context.Background(), marketplace.NewCursor(base), collect(new([]Page[marketplace.OrderRow])))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Waits)
	assert.Equal(t, []time.Duration{90 * time.Second, time.Minute}, sleeps.delays)
	assert.Equal(t, []time.Time{base, base, base, at(1)}, feed.cursors())
}

func TestPager_RateLimitRetriesAreBounded(t *testing.T) {
	limited := &marketplace.RateLimitedError{Endpoint: "orders"}
	feed := newScriptedFeed(response{err: limited}, response{err: limited}, response{err: limited}, response{err: limited})
	sleeps := &recordedSleeps{}
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(sleeps), nil, nil)

	result, err := pager.Stream(context.Background(), marketplace.NewCursor(base), collect(new([]Page[marketplace.OrderRow])))
	require.Error(t, err)

	assert.ErrorIs(t, err, marketplace.ErrRateLimitExceeded)
	assert.ErrorIs(t, err, marketplace.ErrRateLimited)
	assert.Len(t, feed.cursors(), 3)
	assert.Len(t, sleeps.delays, 2)
	assert.Equal(t, 0, result.Pages)
	assert.True(t, result.Cursor.Equal(marketplace.NewCursor(base)))
}

func TestPager_Cancellation(t *testing.T) {
	feed := newScriptedFeed(
		response{rows: []marketplace.OrderRow{order("a", at(1))}},
		response{rows: []marketplace.OrderRow{order("b", at(2))}},
	)
	pager := NewPager[marketplace.OrderRow](testAccount, StreamOrders, feed.fetch, testPolicy(&recordedSleeps{}), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := pager.Stream(ctx, marketplace.NewCursor(base), func(_ context.Context, _ Page[marketplace.OrderRow]) error {
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, feed.cursors(), 1)
}

func TestRetryPolicy_WaitHonoursCap(t *testing.T) {
	p := RetryPolicy{Delay: time.Minute, MaxDelay: 2 * time.Minute}
	assert.Equal(t, time.Minute, p.wait(errors.New("x")))
	assert.Equal(t, 2*time.Minute, p.wait(&marketplace.RateLimitedError{RetryAfter: time.Hour}))
	assert.Equal(t, time.Minute, p.wait(&marketplace.RateLimitedError{RetryAfter: time.Second}))
}

func TestRetryPolicy_SleepInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryPolicy{MaxAttempts: 3, Delay: time.Hour}.Do(ctx, func(context.Context) error {
		calls++
		return marketplace.ErrRateLimited
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
