package fn

import (
	"context"
	"sync"
)

// Indexed pairs a value with the position of the input item that produced it.
type Indexed[T any] struct {
	Index int
	Value T
}

// ParStream applies f to each item with at most workers calls in flight.
//
// Items are admitted in input order: item i+workers is not started until one
// of the earlier calls has returned. Results are delivered in completion
// order, tagged with the input index. Once ctx is done, items that were not
// yet admitted are handed to skipped instead of f, so every item yields
// exactly one value. The channel is closed after the last value.
func ParStream[T, U any](
	ctx context.Context,
	items []T,
	workers int,
	f func(context.Context, T) U,
	skipped func(T, error) U,
) <-chan Indexed[U] {
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}
	out := make(chan Indexed[U], max(workers, 1))

	go func() {
		defer close(out)
		var wg sync.WaitGroup
		sem := make(chan struct{}, max(workers, 1))

		for i, v := range items {
			if err := acquire(ctx, sem); err != nil {
				out <- Indexed[U]{Index: i, Value: skipped(v, err)}
				continue
			}
			wg.Add(1)
			go func(i int, v T) {
				defer func() { <-sem; wg.Done() }()
				out <- Indexed[U]{Index: i, Value: f(ctx, v)}
			}(i, v)
		}
		wg.Wait()
	}()

	return out
}

// ParMap applies f with bounded concurrency and returns results in input order.
func ParMap[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, T) U, skipped func(T, error) U) []U {
	out := make([]U, len(items))
	for r := range ParStream(ctx, items, workers, f, skipped) {
		out[r.Index] = r.Value
	}
	return out
}

func acquire(ctx context.Context, sem chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
