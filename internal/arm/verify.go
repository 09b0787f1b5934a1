package arm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach runs fn for 0..n-1 with at most limit calls in flight. The first error
// cancels the context passed to the remaining calls and is returned.
func forEach(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}
