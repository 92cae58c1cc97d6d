// Package pool provides the bounded-concurrency map used over sources and
// over articles needing full text.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Map runs fn over every element of in using at most workers goroutines.
// Workers claim indices from a shared cursor, so the worker count directly
// bounds concurrent outbound requests, and results land at their input index
// regardless of completion order. fn must fold its own failures into R.
func Map[T, R any](ctx context.Context, workers int, in []T, fn func(ctx context.Context, item T) R) []R {
	if len(in) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(in) {
		workers = len(in)
	}

	results := make([]R, len(in))
	var cursor atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(in) {
					return nil
				}
				results[i] = fn(ctx, in[i])
			}
		})
	}
	_ = g.Wait()

	return results
}
