package server

import (
	"net/http"
	"time"

	"github.com/jonathan/call-transcriber/internal/progress"
)

// sseKeepAlive is the interval of comment lines on idle streams
var sseKeepAlive = 15 * time.Second

// handleProgressStream streams the events of one session as SSE and ends
// after the session's terminal event
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	sub := s.hub.Subscribe(sessionID)
	defer sub.Close()

	stream, err := openEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := stream.send("connected", map[string]string{"session_id": sessionID}); err != nil {
		return
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := stream.ping(); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := stream.send(ev.Type, ev); err != nil {
				return
			}
			// The global channel never ends on its own
			if sessionID != progress.GlobalChannel && ev.Stage.IsTerminal() {
				return
			}
		}
	}
}
