package pipeline

import (
	"context"
	"runtime/debug"
	"time"
)

// Outcome is the result of one supervised blocking call
type Outcome[T any] struct {
	Value    T
	Err      error
	TimedOut bool
	Elapsed  time.Duration
}

// StartWorker runs work on its own goroutine. The returned channel is
// buffered so the worker never blocks, even after its supervisor has stopped
// listening. Panics are captured as a *PanicError.
func StartWorker[T any](ctx context.Context, work func(context.Context) (T, error)) <-chan Outcome[T] {
	results := make(chan Outcome[T], 1)

	go func() {
		var out Outcome[T]
		defer func() {
			if r := recover(); r != nil {
				out = Outcome[T]{Err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
			results <- out
		}()

		out.Value, out.Err = work(ctx)
	}()

	return results
}
