package deploy

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel file reads and uploads.
const DefaultConcurrency = 10

// runPool calls fn for every item with at most limit calls in flight.
// The first error cancels the context passed to the remaining calls; items
// not yet started are skipped, and Wait returns that first error.
func runPool[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, i int, item T) error) error {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i, item)
		})
	}
	return g.Wait()
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
