package exchange

import (
	"context"
	"log/slog"
)

// Pager is a lazy cursor-pagination iterator. Callers pull one page at a
// time with Next and may abandon the sequence at any point; the current
// cursor is always inspectable, so a later Pager can resume from it (a
// sequence restarts from a cursor, never from the middle of a page).
//
// MaxPages is a safety cap: when the cap is reached and the server still
// returned a cursor, exactly one structured warning is emitted carrying
// that cursor, and the iterator ends cleanly.
type Pager[T any] struct {
	fetch    func(ctx context.Context, cursor string) ([]T, string, error)
	cursor   string
	maxPages int // 0 = unlimited
	pages    int
	done     bool
	logger   *slog.Logger
	op       string
}

// NewPager builds a pager over fetch, which returns one page of items and
// the cursor for the page after it (empty when the sequence ends). Client
// methods build their own; it is exported for adapters that page over
// other sources.
func NewPager[T any](op string, startCursor string, maxPages int, logger *slog.Logger,
	fetch func(ctx context.Context, cursor string) ([]T, string, error)) *Pager[T] {
	return &Pager[T]{fetch: fetch, cursor: startCursor, maxPages: maxPages, logger: logger, op: op}
}

// Next fetches the next page. ok is false when the sequence is exhausted.
// On error the iterator stays positioned at the failing page's cursor, so
// Cursor() identifies where a retry should resume.
func (p *Pager[T]) Next(ctx context.Context) (items []T, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	items, next, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, false, err
	}
	p.pages++
	p.cursor = next

	if next == "" {
		p.done = true
		return items, true, nil
	}
	if p.maxPages > 0 && p.pages >= p.maxPages {
		p.logger.Warn("pagination truncated at max_pages",
			"op", p.op, "pages", p.pages, "last_cursor", next)
		p.done = true
	}
	return items, true, nil
}

// Cursor returns the cursor the next Next call would fetch from. Empty
// once the server reported the final page.
func (p *Pager[T]) Cursor() string {
	return p.cursor
}

// Pages returns how many pages have been fetched so far.
func (p *Pager[T]) Pages() int {
	return p.pages
}

// collect drains a pager into one slice. Convenience for callers that do
// not need page-by-page consumption; partial results are returned alongside
// a mid-stream error so callers can keep what succeeded.
func collect[T any](ctx context.Context, p *Pager[T]) ([]T, error) {
	var all []T
	for {
		items, ok, err := p.Next(ctx)
		if err != nil {
			return all, err
		}
		if !ok {
			return all, nil
		}
		all = append(all, items...)
	}
}
