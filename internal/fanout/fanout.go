// Package fanout provides the fan-out/fan-in primitive used for
// cross-source retrieval and comparison-mode generation. Each branch
// settles independently; failures are captured per branch instead of
// aborting the batch.
package fanout

import (
	"context"
	"sync"
)

// Task is one named branch of a fan-out.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Result is the settled outcome of one branch: either a value or a
// captured error, never a propagated panic of the batch.
type Result[T any] struct {
	Name  string
	Value T
	Err   error
}

// Ok reports whether the branch settled successfully.
func (r Result[T]) Ok() bool {
	return r.Err == nil
}

// Gather runs all tasks concurrently and waits until every branch has
// settled. Results are returned in task order.
func Gather[T any](ctx context.Context, tasks []Task[T]) []Result[T] {
	return GatherBounded(ctx, 0, tasks)
}

// GatherBounded is Gather with at most limit branches in flight at a
// time. limit <= 0 means unbounded.
func GatherBounded[T any](ctx context.Context, limit int, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))

	var sem chan struct{}
	if limit > 0 {
		sem = make(chan struct{}, limit)
	}

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()

			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					results[i] = Result[T]{Name: task.Name, Err: ctx.Err()}
					return
				}
				// A slot freed by a finishing branch must not start
				// new work once the context has died.
				if err := ctx.Err(); err != nil {
					results[i] = Result[T]{Name: task.Name, Err: err}
					return
				}
			}

			value, err := task.Run(ctx)
			results[i] = Result[T]{Name: task.Name, Value: value, Err: err}
		}(i, task)
	}
	wg.Wait()

	return results
}
