package media

import (
	"context"
	"sync"
)

// Parallel calls fn for every index in [0, n) on at most workers goroutines.
// The first error cancels the context handed to the remaining calls, stops
// new indexes from starting and is returned.
func Parallel(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if workers <= 0 {
		workers = 1
	}
	workers = min(workers, n)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	next := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for i := range next {
				if ctx.Err() != nil {
					continue
				}
				if err := fn(ctx, i); err != nil {
					cancel(err)
				}
			}
		})
	}

feed:
	for i := range n {
		select {
		case <-ctx.Done():
			break feed
		case next <- i:
		}
	}
	close(next)
	wg.Wait()

	return context.Cause(ctx)
}
