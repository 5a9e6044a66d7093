package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStagePercent(t *testing.T) {
	transcription := DefaultOptions().transcriptionSpec()
	analysis := DefaultOptions().analysisSpec()

	tests := []struct {
		name    string
		spec    StageSpec
		elapsed time.Duration
		want    int
	}{
		{name: "transcription start", spec: transcription, elapsed: 0, want: 35},
		{name: "transcription early ramp", spec: transcription, elapsed: 2 * time.Second, want: 36},
		{name: "transcription half expected", spec: transcription, elapsed: 30 * time.Second, want: 52},
		{name: "transcription just before expected", spec: transcription, elapsed: 58 * time.Second, want: 68},
		{name: "transcription second phase", spec: transcription, elapsed: 60 * time.Second, want: 42},
		{name: "transcription at budget", spec: transcription, elapsed: 300 * time.Second, want: 70},
		{name: "transcription past budget clamps", spec: transcription, elapsed: 400 * time.Second, want: 70},
		{name: "analysis early ramp", spec: analysis, elapsed: 2 * time.Second, want: 74},
		{name: "analysis ramp clamps to end", spec: analysis, elapsed: 10 * time.Second, want: 90},
		{name: "analysis second phase", spec: analysis, elapsed: 16 * time.Second, want: 75},
		{name: "negative elapsed", spec: analysis, elapsed: -time.Second, want: 70},
		{
			name:    "no budget jumps to end",
			spec:    StageSpec{StartPercent: 10, EndPercent: 20},
			elapsed: time.Second,
			want:    20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StagePercent(tt.spec, tt.elapsed))
		})
	}
}

func TestStagePercent_StaysInRange(t *testing.T) {
	spec := DefaultOptions().transcriptionSpec()
	for e := time.Duration(0); e <= 2*spec.Budget; e += 500 * time.Millisecond {
		pct := StagePercent(spec, e)
		assert.GreaterOrEqual(t, pct, spec.StartPercent)
		assert.LessOrEqual(t, pct, spec.EndPercent)
	}
}
