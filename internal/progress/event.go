// Package progress delivers pipeline progress events to observers.
//
// Every event is published twice per sink: once on the channel named by the
// session id and once on GlobalChannel. Observers that subscribe late, or
// cannot subscribe to their session, read the global channel and filter by
// session_id themselves. Duplicates are expected.
package progress

import (
	"time"

	"github.com/jonathan/call-transcriber/internal/db"
)

// GlobalChannel receives a copy of every event
const GlobalChannel = "global"

// Stage names a pipeline step
type Stage string

// Pipeline stages in order, followed by the two terminal stages
const (
	StageUploading    Stage = "uploading"
	StageProcessing   Stage = "processing"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StageSaving       Stage = "saving"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

// IsTerminal reports whether no further events follow this stage
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageError
}

// Event types seen by observers
const (
	TypeProgress = "upload_progress"
	TypeComplete = "upload_complete"
)

// Event is a single progress update
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Success   *bool     `json:"success,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Call      *db.Call  `json:"call,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event with the type derived from the stage
func NewEvent(sessionID string, stage Stage, percent int, message string) Event {
	ev := Event{
		Type:      TypeProgress,
		SessionID: sessionID,
		Stage:     stage,
		Progress:  percent,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if stage.IsTerminal() {
		ev.Type = TypeComplete
		success := stage == StageComplete
		ev.Success = &success
	}
	return ev
}
