package pipeline

import (
	"time"

	"github.com/jonathan/call-transcriber/internal/progress"
)

// RampSpan is how many points a stage may climb during its expected duration
const RampSpan = 35

// StageSpec describes how a supervised stage is timed and displayed
type StageSpec struct {
	Stage        progress.Stage
	Label        string // used in tick messages and timeout errors
	StartPercent int
	EndPercent   int
	Budget       time.Duration
	Expected     time.Duration
}

// StagePercent maps elapsed time to a displayed percent.
//
// Before the expected duration the percent ramps RampSpan points above the
// start. After it, the percent follows elapsed/budget across the whole
// [start, end] range. The result is always clamped to [start, end]. The two
// phases do not join up, so callers that need a non-decreasing stream must
// keep the highest value they have shown.
func StagePercent(spec StageSpec, elapsed time.Duration) int {
	var pct int
	switch {
	case elapsed <= 0:
		pct = spec.StartPercent
	case spec.Expected > 0 && elapsed < spec.Expected:
		pct = spec.StartPercent + int(float64(elapsed)/float64(spec.Expected)*RampSpan)
	case spec.Budget > 0:
		span := float64(spec.EndPercent - spec.StartPercent)
		pct = spec.StartPercent + int(float64(elapsed)/float64(spec.Budget)*span)
	default:
		pct = spec.EndPercent
	}

	if pct < spec.StartPercent {
		return spec.StartPercent
	}
	if pct > spec.EndPercent {
		return spec.EndPercent
	}
	return pct
}
