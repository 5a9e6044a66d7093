// Package pipeline drives an uploaded call recording through persistence,
// transcription, analysis and saving while streaming progress to observers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/call-transcriber/internal/db"
	"github.com/jonathan/call-transcriber/internal/progress"
	"github.com/jonathan/call-transcriber/internal/types"
)

// Submission is one uploaded file
type Submission struct {
	Data      []byte
	Filename  string
	SessionID string
	Language  string // optional, empty lets the engine detect it
}

// Receipt identifies an accepted submission
type Receipt struct {
	SessionID string
	CallID    uuid.UUID
	AudioPath string
}

// Run outcomes recorded in metrics
const (
	outcomeComplete = "complete"
	outcomeError    = "error"
)

// Coordinator runs submissions. Validation and the initial writes happen in
// Submit; transcription, analysis and saving continue in a tracked background task.
type Coordinator struct {
	deps  Deps
	opts  Options
	guard *Guard
	log   *logrus.Logger
	group errgroup.Group
}

// New creates a coordinator. Zero option fields take their defaults.
func New(deps Deps, opts Options) (*Coordinator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	opts = opts.withDefaults()

	return &Coordinator{
		deps:  deps,
		opts:  opts,
		guard: NewGuard(deps.Clock, opts.PollInterval),
		log:   deps.Logger,
	}, nil
}

// MaxUploadBytes returns the largest accepted upload
func (c *Coordinator) MaxUploadBytes() int64 {
	return c.opts.MaxUploadBytes
}

// AllowedExtensions returns the accepted file extensions
func (c *Coordinator) AllowedExtensions() []string {
	return c.opts.AllowedExtensions
}

// Wait blocks until every background run has finished
func (c *Coordinator) Wait() error {
	return c.group.Wait()
}

// Submit validates and stores the upload, creates the provisional call record
// and starts the background run. Every outcome, including the error returned
// here, is also reported as exactly one terminal progress event.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (receipt Receipt, err error) {
	r := c.newRun(sub)

	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
			r.fail(ctx, err, "Error: "+err.Error())
			receipt = Receipt{}
		}
	}()

	r.progress(progress.StageUploading, 0, "Validating file...")
	name, ext, err := c.opts.validate(sub)
	if err != nil {
		r.fail(ctx, err, err.Error())
		return Receipt{}, err
	}

	r.progress(progress.StageUploading, 10, "Saving file...")
	path, err := c.deps.Artifacts.Save(uuid.NewString()+ext, sub.Data)
	if err != nil {
		err = fmt.Errorf("failed to save file: %w", err)
		r.fail(ctx, err, "Error: "+err.Error())
		return Receipt{}, err
	}
	r.audioPath = path

	r.progress(progress.StageProcessing, 25, "Creating call record...")
	id, err := c.deps.Calls.CreateCall(ctx, name, path)
	if err != nil {
		err = fmt.Errorf("failed to create call record: %w", err)
		r.fail(ctx, err, "Error: "+err.Error())
		return Receipt{}, err
	}
	r.callID = id
	r.log = r.log.WithField("call_id", id.String())
	r.progress(progress.StageProcessing, 30, "Call record created")

	// The run outlives the request that submitted it
	bg := context.WithoutCancel(ctx)
	c.group.Go(func() error {
		r.execute(bg)
		return nil
	})

	return Receipt{SessionID: sub.SessionID, CallID: id, AudioPath: path}, nil
}

// run is the state of one submission. It is only touched by the goroutine
// currently driving the submission, never by stage workers.
type run struct {
	c          *Coordinator
	sessionID  string
	language   string
	filename   string
	audioPath  string
	callID     uuid.UUID
	last       int
	terminated bool
	started    time.Time
	log        *logrus.Entry
}

func (c *Coordinator) newRun(sub Submission) *run {
	return &run{
		c:         c,
		sessionID: sub.SessionID,
		language:  sub.Language,
		filename:  sub.Filename,
		started:   time.Now(),
		log: c.log.WithFields(logrus.Fields{
			"session_id": sub.SessionID,
			"filename":   sub.Filename,
		}),
	}
}

// progress publishes a non-terminal event, never below the last percent shown
func (r *run) progress(stage progress.Stage, percent int, message string) {
	if r.terminated {
		return
	}
	if percent < r.last {
		percent = r.last
	}
	r.last = percent
	r.c.deps.Publisher.Publish(r.sessionID, stage, percent, message)
}

func (r *run) tick(stage progress.Stage, label string) TickFunc {
	return func(percent int, elapsed time.Duration) {
		r.progress(stage, percent, fmt.Sprintf("%s... (%ds)", label, int(elapsed/time.Second)))
	}
}

// execute is the background part of a run
func (r *run) execute(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			err := &PanicError{Value: rec, Stack: debug.Stack()}
			r.log.WithField("stack", string(err.Stack)).Error("Pipeline panicked")
			r.fail(ctx, err, "Error: "+err.Error())
		}
	}()

	transcript, err := r.transcribe(ctx)
	if err != nil {
		r.fail(ctx, err, "Transcription failed: "+err.Error())
		return
	}

	result := r.analyze(ctx, transcript)

	r.progress(progress.StageSaving, 90, "Saving results...")
	start := time.Now()
	if err := r.c.deps.Calls.UpdateCallResults(ctx, r.callID, transcript, result); err != nil {
		err = fmt.Errorf("failed to save results: %w", err)
		r.fail(ctx, err, "Error: "+err.Error())
		return
	}

	call, err := r.c.deps.Calls.GetCall(ctx, r.callID)
	if err == nil && call == nil {
		err = ErrRecordMissing
	}
	if err != nil {
		err = fmt.Errorf("failed to load saved call: %w", err)
		r.fail(ctx, err, "Error: "+err.Error())
		return
	}
	r.c.deps.Metrics.ObserveStage(string(progress.StageSaving), time.Since(start))

	r.complete(call)
}

func (r *run) transcribe(ctx context.Context) (string, error) {
	r.progress(progress.StageTranscribing, 30, "Starting transcription...")
	r.progress(progress.StageTranscribing, 35, "Processing audio...")

	spec := r.c.opts.transcriptionSpec()
	path, language := r.audioPath, r.language
	transcriber := r.c.deps.Transcriber

	out := Supervise(ctx, r.c.guard, spec, r.tick(spec.Stage, "Transcribing audio"),
		func(ctx context.Context) (string, error) {
			return transcriber.Transcribe(ctx, path, language)
		})
	r.c.deps.Metrics.ObserveStage(string(spec.Stage), out.Elapsed)

	if out.TimedOut {
		r.c.deps.Metrics.RecordTimeout(string(spec.Stage))
		return "", out.Err
	}
	if out.Err != nil {
		return "", out.Err
	}

	transcript := strings.TrimSpace(out.Value)
	if transcript == "" {
		r.log.Warn("Transcription returned no speech")
		transcript = types.EmptyTranscriptMarker
	}

	r.log.WithFields(logrus.Fields{
		"chars":   len(transcript),
		"elapsed": out.Elapsed.String(),
	}).Info("Transcription completed")
	r.progress(progress.StageTranscribing, 70, "Transcription complete")
	return transcript, nil
}

// analyze never fails: any problem yields the fallback analysis
func (r *run) analyze(ctx context.Context, transcript string) *types.CallAnalysis {
	r.progress(progress.StageAnalyzing, 70, "Analyzing transcript...")

	spec := r.c.opts.analysisSpec()
	input := TruncateForAnalysis(transcript, r.c.opts.MaxAnalysisChars)
	if len(input) != len(transcript) {
		r.log.WithFields(logrus.Fields{
			"from": len(transcript),
			"to":   len(input),
		}).Debug("Transcript truncated for analysis")
	}
	analyzer := r.c.deps.Analyzer

	out := Supervise(ctx, r.c.guard, spec, r.tick(spec.Stage, "Analyzing transcript"),
		func(ctx context.Context) (*types.CallAnalysis, error) {
			return analyzer.Analyze(ctx, input)
		})
	r.c.deps.Metrics.ObserveStage(string(spec.Stage), out.Elapsed)

	var result *types.CallAnalysis
	switch {
	case out.TimedOut:
		r.c.deps.Metrics.RecordTimeout(string(spec.Stage))
		r.log.WithError(out.Err).Warn("Analysis timed out, using fallback")
	case out.Err != nil:
		r.log.WithError(out.Err).Warn("Analysis failed, using fallback")
	case out.Value == nil:
		r.log.Warn("Analysis returned no result, using fallback")
	default:
		result = out.Value
		result.Normalize()
	}
	if result == nil {
		result = types.FallbackAnalysis()
	}

	r.progress(progress.StageAnalyzing, 90, "Analysis complete")
	return result
}

func (r *run) complete(call *db.Call) {
	if r.terminated {
		return
	}
	r.terminated = true
	r.last = 100

	ev := progress.NewEvent(r.sessionID, progress.StageComplete, 100, "Processing complete!")
	ev.CallID = call.ID.String()
	ev.Call = call
	r.c.deps.Publisher.PublishEvent(ev)

	r.c.deps.Metrics.RecordRun(outcomeComplete)
	r.log.WithField("duration", time.Since(r.started).String()).Info("Pipeline completed")
}

// fail emits the terminal error event and removes what the run created
func (r *run) fail(ctx context.Context, cause error, message string) {
	if r.terminated {
		return
	}
	r.terminated = true

	var validationErr *ValidationError
	entry := r.log.WithError(cause)
	if errors.As(cause, &validationErr) {
		entry.Warn("Upload rejected")
	} else {
		entry.Error("Pipeline failed")
	}

	r.cleanup(ctx)

	ev := progress.NewEvent(r.sessionID, progress.StageError, r.last, message)
	ev.Error = cause.Error()
	if r.callID != uuid.Nil && r.c.opts.RetainOnFailure {
		ev.CallID = r.callID.String()
	}
	r.c.deps.Publisher.PublishEvent(ev)

	r.c.deps.Metrics.RecordRun(outcomeError)
}

func (r *run) cleanup(ctx context.Context) {
	if r.callID != uuid.Nil && r.c.opts.RetainOnFailure {
		r.log.Info("Keeping call record and audio of failed run")
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.c.opts.CleanupTimeout)
	defer cancel()

	if r.callID != uuid.Nil {
		if err := r.c.deps.Calls.DeleteCall(cctx, r.callID); err != nil {
			r.log.WithError(err).Warn("Failed to delete call record during cleanup")
		}
	}
	if r.audioPath != "" {
		if err := r.c.deps.Artifacts.Remove(r.audioPath); err != nil {
			r.log.WithError(err).Warn("Failed to remove audio file during cleanup")
		}
	}
}
