package pipeline

import (
	"context"
	"time"
)

// DefaultPollInterval is how often a guard checks its worker
const DefaultPollInterval = 500 * time.Millisecond

// tickEvery is the elapsed-second period of progress ticks
const tickEvery = 2

// Clock is the time source used by guards
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock
func RealClock() Clock {
	return realClock{}
}

// Guard supervises stage workers against a time budget
type Guard struct {
	clock Clock
	poll  time.Duration
}

// NewGuard creates a guard. A nil clock means the wall clock.
func NewGuard(clock Clock, poll time.Duration) *Guard {
	if clock == nil {
		clock = RealClock()
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Guard{clock: clock, poll: poll}
}

// TickFunc receives a progress tick with the displayed percent
type TickFunc func(percent int, elapsed time.Duration)

// Supervise starts work and polls until it finishes or the budget is exceeded.
//
// On every even elapsed second it calls tick with a percent from StagePercent,
// never lower than the last one it reported. When the budget runs out the
// worker is abandoned and a timed-out Outcome carrying a *TimeoutError is
// returned; the worker's late result lands in a buffer nobody reads.
func Supervise[T any](ctx context.Context, g *Guard, spec StageSpec, tick TickFunc, work func(context.Context) (T, error)) Outcome[T] {
	start := g.clock.Now()
	results := StartWorker(ctx, work)

	last := spec.StartPercent
	lastTick := 0

	for {
		select {
		case out := <-results:
			out.Elapsed = g.clock.Now().Sub(start)
			return out
		case <-ctx.Done():
			return Outcome[T]{Err: ctx.Err(), Elapsed: g.clock.Now().Sub(start)}
		case <-g.clock.After(g.poll):
		}

		elapsed := g.clock.Now().Sub(start)
		if elapsed > spec.Budget {
			return Outcome[T]{
				Err:      &TimeoutError{Stage: spec.Label, Budget: spec.Budget},
				TimedOut: true,
				Elapsed:  elapsed,
			}
		}

		sec := int(elapsed / time.Second)
		if sec > 0 && sec%tickEvery == 0 && sec != lastTick {
			lastTick = sec
			pct := StagePercent(spec, elapsed)
			if pct < last {
				pct = last
			}
			last = pct
			if tick != nil {
				tick(pct, elapsed)
			}
		}
	}
}
