// Package workpool runs a per-item stage function over a batch of work items
// with bounded concurrency. Failures stay inside the item that caused them:
// a panic or error in one stage invocation never aborts its siblings.
package workpool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWidth is the pool width used when the caller passes a non-positive
// concurrency value.
const DefaultWidth = 3

// Result pairs one item's stage output with its input position and any
// per-item failure. Err is non-nil only when the stage returned an error or
// panicked; Value is the zero value in that case.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Run applies stage to every item with at most width concurrent invocations
// and returns exactly one Result per item, in input order. Items execute as
// slots free up; completion order is unspecified. Run itself never returns an
// error short of a nil stage — per-item failures are carried in the results so
// the caller can convert them into typed outcomes.
func Run[T, R any](ctx context.Context, items []T, width int, stage func(context.Context, T) (R, error)) []Result[R] {
	if width <= 0 {
		width = DefaultWidth
	}

	results := make([]Result[R], len(items))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)

	for i, item := range items {
		g.Go(func() error {
			value, err := runOne(gctx, item, stage)
			results[i] = Result[R]{Index: i, Value: value, Err: err}

			mu.Lock()
			done++
			completed := done
			mu.Unlock()

			if err != nil {
				zap.L().Warn("workpool: item failed",
					zap.Int("index", i),
					zap.Int("completed", completed),
					zap.Int("total", len(items)),
					zap.Error(err),
				)
			} else {
				zap.L().Debug("workpool: item complete",
					zap.Int("index", i),
					zap.Int("completed", completed),
					zap.Int("total", len(items)),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// runOne invokes stage on a single item, converting a panic into an error so
// one poisoned item cannot take down the batch.
func runOne[T, R any](ctx context.Context, item T, stage func(context.Context, T) (R, error)) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workpool: stage panic: %v", r)
		}
	}()
	return stage(ctx, item)
}
