package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Validation failures, matched with errors.Is on a *ValidationError
var (
	ErrNoFilename      = errors.New("no file selected")
	ErrUnsupportedType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidFilename = errors.New("invalid filename")
)

// ErrRecordMissing is returned when the call record vanished before the results were read back
var ErrRecordMissing = errors.New("call record missing after save")

// ValidationError rejects a submission before anything is persisted
type ValidationError struct {
	Filename string
	Message  string
	Cause    error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// TimeoutError reports a stage that exceeded its budget. The worker is abandoned, not stopped.
type TimeoutError struct {
	Stage  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Stage, e.Budget)
}

// IsTimeout reports whether err is a TimeoutError
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// PanicError carries a panic recovered from a worker or the background run
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unexpected failure: %v", e.Value)
}
