package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// sseRetry is the reconnect delay suggested to browsers
const sseRetry = 3 * time.Second

// eventStream writes text/event-stream frames. Every event carries an
// increasing id so clients can tell frames apart after a reconnect.
type eventStream struct {
	out     *bufio.Writer
	flusher http.Flusher
	seq     int
}

// openEventStream sends the stream headers and the retry hint
func openEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &eventStream{out: bufio.NewWriter(w), flusher: flusher}
	s.out.WriteString("retry: " + strconv.FormatInt(sseRetry.Milliseconds(), 10) + "\n\n")
	return s, s.flush()
}

// send writes one named event with a JSON body
func (s *eventStream) send(name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.seq++
	s.out.WriteString("id: " + strconv.Itoa(s.seq) + "\n")
	s.out.WriteString("event: " + name + "\n")
	s.out.WriteString("data: ")
	s.out.Write(body)
	s.out.WriteString("\n\n")
	return s.flush()
}

// ping writes a comment line, ignored by EventSource clients
func (s *eventStream) ping() error {
	s.out.WriteString(": ping " + time.Now().UTC().Format(time.RFC3339) + "\n\n")
	return s.flush()
}

func (s *eventStream) flush() error {
	if err := s.out.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
