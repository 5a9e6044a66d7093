package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/call-transcriber/internal/progress"
)

// stepClock advances by the requested duration every time After is called,
// so a guard polls through virtual time without sleeping.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type tickRecord struct {
	percent int
	elapsed time.Duration
}

func TestSupervise_TicksAndTimeout(t *testing.T) {
	g := NewGuard(newStepClock(), 500*time.Millisecond)
	spec := StageSpec{
		Stage:        progress.StageTranscribing,
		Label:        "Transcription",
		StartPercent: 35,
		EndPercent:   70,
		Budget:       10 * time.Second,
		Expected:     5 * time.Second,
	}

	release := make(chan struct{})
	defer close(release)

	var ticks []tickRecord
	out := Supervise(context.Background(), g, spec,
		func(percent int, elapsed time.Duration) {
			ticks = append(ticks, tickRecord{percent, elapsed})
		},
		func(context.Context) (string, error) {
			<-release
			return "too late", nil
		})

	require.True(t, out.TimedOut)
	assert.True(t, IsTimeout(out.Err))
	assert.Equal(t, "Transcription timed out after 10s", out.Err.Error())
	assert.Empty(t, out.Value)
	assert.Equal(t, 10500*time.Millisecond, out.Elapsed)

	// Ticks on even seconds only; the phase change at 5s would drop to 56 but the
	// guard holds 63 until the second phase catches up
	require.Len(t, ticks, 5)
	var percents []int
	for i, tk := range ticks {
		assert.Equal(t, time.Duration(2*(i+1))*time.Second, tk.elapsed)
		percents = append(percents, tk.percent)
	}
	assert.Equal(t, []int{49, 63, 63, 63, 70}, percents)
}

func TestSupervise_ReturnsWorkerResult(t *testing.T) {
	g := NewGuard(RealClock(), 5*time.Millisecond)
	spec := DefaultOptions().analysisSpec()

	out := Supervise(context.Background(), g, spec, nil, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, out.Err)
	assert.False(t, out.TimedOut)
	assert.Equal(t, 42, out.Value)
}

func TestSupervise_ReturnsWorkerError(t *testing.T) {
	g := NewGuard(RealClock(), 5*time.Millisecond)
	boom := errors.New("engine failure")

	out := Supervise(context.Background(), g, DefaultOptions().analysisSpec(), nil, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, out.Err, boom)
	assert.False(t, out.TimedOut)
}

func TestSupervise_CapturesPanic(t *testing.T) {
	g := NewGuard(RealClock(), 5*time.Millisecond)

	out := Supervise(context.Background(), g, DefaultOptions().analysisSpec(), nil, func(context.Context) (string, error) {
		panic("worker exploded")
	})

	var panicErr *PanicError
	require.True(t, errors.As(out.Err, &panicErr))
	assert.Equal(t, "worker exploded", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestSupervise_ContextDone(t *testing.T) {
	g := NewGuard(RealClock(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	defer close(release)

	out := Supervise(ctx, g, DefaultOptions().analysisSpec(), nil, func(context.Context) (string, error) {
		<-release
		return "", nil
	})
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.False(t, out.TimedOut)
}

func TestStartWorker_LateResultIsBuffered(t *testing.T) {
	release := make(chan struct{})
	results := StartWorker(context.Background(), func(context.Context) (string, error) {
		<-release
		return "late", nil
	})

	// Nobody reads; the worker must still be able to finish
	close(release)
	require.Eventually(t, func() bool { return len(results) == 1 }, time.Second, time.Millisecond)

	out := <-results
	assert.Equal(t, "late", out.Value)
}

func TestNewGuard_Defaults(t *testing.T) {
	g := NewGuard(nil, 0)
	assert.Equal(t, DefaultPollInterval, g.poll)
	assert.NotNil(t, g.clock)
}
