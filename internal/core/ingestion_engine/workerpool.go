package ingestion_engine

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// runPool runs work(i) for i in [0, n) on at most concurrency goroutines.
// Each worker claims the next index from a shared cursor, so the pool keeps
// concurrency items in flight until the input is drained. The first error
// cancels the context handed to the remaining items and is returned.
func runPool(ctx context.Context, n, concurrency int, work func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > n {
		concurrency = n
	}

	g, gctx := errgroup.WithContext(ctx)
	var cursor atomic.Int64

	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(cursor.Add(1) - 1)
				if i >= n {
					return nil
				}
				if err := work(gctx, i); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}
