// Package feedsync drives incremental, cursor-based pulls of the marketplace feeds.
package feedsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// FetchFunc fetches the page that starts at from
type FetchFunc[T marketplace.Record] func(ctx context.Context, from marketplace.Cursor) ([]T, error)

// Page is one non-empty batch of records handed to a PageHandler
type Page[T marketplace.Record] struct {
	Number  int
	From    marketplace.Cursor
	Next    marketplace.Cursor
	Records []T
}

// PageHandler consumes a page. Returning an error stops the stream without advancing the cursor.
type PageHandler[T marketplace.Record] func(ctx context.Context, page Page[T]) error

// StreamResult describes how far a stream got
type StreamResult struct {
	Pages   int
	Records int
	// Cursor is the position after the last page that was handled successfully
	Cursor  marketplace.Cursor
	Stalled bool
	Waits   int
}

// Pager walks a feed page by page. Each request uses the cursor left by the previous page,
// so pages are strictly sequential.
type Pager[T marketplace.Record] struct {
	fetch    FetchFunc[T]
	retry    RetryPolicy
	account  marketplace.AccountID
	stream   string
	observer Observer
	logger   *zap.Logger
}

// NewPager creates a pager for one (account, stream)
func NewPager[T marketplace.Record](
	account marketplace.AccountID,
	stream string,
	fetch FetchFunc[T],
	retry RetryPolicy,
	observer Observer,
	logger *zap.Logger,
) *Pager[T] {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager[T]{
		fetch:    fetch,
		retry:    retry.withDefaults(),
		account:  account,
		stream:   stream,
		observer: observer,
		logger:   logger.With(zap.String("account", account.String()), zap.String("stream", stream)),
	}
}

// Stream fetches pages from start and passes each to handle until the upstream returns
// an empty page. The cursor advances to the latest change time seen in a page, and only
// after the page was handled. A non-empty page that leaves the cursor where it was ends
// the stream, since asking again would return the same page forever.
func (p *Pager[T]) Stream(ctx context.Context, start marketplace.Cursor, handle PageHandler[T]) (StreamResult, error) {
	result := StreamResult{Cursor: start}
	cursor := start

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, err := p.fetchPage(ctx, cursor, &result)
		if err != nil {
			p.logger.Warn("feed page failed, cursor kept",
				zap.Stringer("cursor", cursor),
				zap.Int("page", result.Pages+1),
				zap.Error(err),
			)
			return result, err
		}
		p.observer.PageFetched(ctx, p.account, p.stream, len(records))

		if len(records) == 0 {
			p.logger.Debug("feed caught up", zap.Stringer("cursor", cursor), zap.Int("pages", result.Pages))
			return result, nil
		}

		next := cursor
		for _, r := range records {
			next = next.Advance(r.ChangedAt())
		}

		page := Page[T]{Number: result.Pages + 1, From: cursor, Next: next, Records: records}
		if err := handle(ctx, page); err != nil {
			return result, err
		}

		result.Pages++
		result.Records += len(records)
		result.Cursor = next

		if next.Equal(cursor) {
			p.logger.Warn("cursor did not advance after a non-empty page, ending stream",
				zap.Stringer("cursor", cursor),
				zap.Int("records", len(records)),
			)
			result.Stalled = true
			return result, nil
		}
		cursor = next
	}
}

func (p *Pager[T]) fetchPage(ctx context.Context, cursor marketplace.Cursor, result *StreamResult) ([]T, error) {
	var records []T
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		records, err = p.fetch(ctx, cursor)
		return err
	}, func(attempt int, d time.Duration) {
		result.Waits++
		p.observer.RateLimitWait(ctx, p.account, p.stream)
		p.logger.Info("rate limited, waiting before retry",
			zap.Stringer("cursor", cursor),
			zap.Int("attempt", attempt),
			zap.Duration("delay", d),
		)
	})
	return records, err
}
