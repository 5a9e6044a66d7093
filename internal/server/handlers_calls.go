package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/call-transcriber/internal/db"
	"github.com/jonathan/call-transcriber/internal/pipeline"
	"github.com/jonathan/call-transcriber/internal/types"
)

// multipartOverhead is allowed on top of the file size for form fields and boundaries
const multipartOverhead = 1 << 20

// UploadResponse is returned for an accepted upload
type UploadResponse struct {
	SessionID string `json:"session_id"`
	CallID    string `json:"call_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// handleUploadCall accepts a multipart upload and starts the pipeline.
// Progress for the returned session_id is streamed on /ws/progress and /api/progress/{session_id}.
func (s *Server) handleUploadCall(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.uploader.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large (max %dMB)", maxBytes/(1024*1024)))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sub := pipeline.Submission{
		SessionID: sessionID,
		Language:  strings.TrimSpace(r.FormValue("language")),
	}

	// A missing file still goes through the pipeline so observers see the rejection
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		sub.Filename = header.Filename
		// One byte past the limit is enough to reject
		sub.Data, err = io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "Invalid file field")
		return
	}

	receipt, err := s.uploader.Submit(r.Context(), sub)
	if err != nil {
		status := HTTPStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			s.log.WithError(err).WithField("session_id", sessionID).Error("Upload failed")
			msg = "Failed to process upload"
		}
		writeJSON(w, status, map[string]string{"error": msg, "session_id": sessionID})
		return
	}

	writeJSON(w, http.StatusAccepted, UploadResponse{
		SessionID: receipt.SessionID,
		CallID:    receipt.CallID.String(),
		Status:    "processing",
		Message:   "File uploaded, processing started",
	})
}

// parseCallFilters reads tag, start_date, end_date, limit and skip
func parseCallFilters(r *http.Request) (db.CallFilters, error) {
	q := r.URL.Query()
	filters := db.CallFilters{Tag: strings.TrimSpace(q.Get("tag"))}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"start_date", &filters.StartDate},
		{"end_date", &filters.EndDate},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return db.CallFilters{}, &ErrValidation{Field: p.name, Message: "expected RFC 3339 or YYYY-MM-DD"}
		}
		*p.dst = &t
	}

	for _, p := range []struct {
		name string
		dst  *int
		min  int
		max  int
	}{
		{"limit", &filters.Limit, 1, db.MaxCallLimit},
		{"skip", &filters.Skip, 0, int(^uint(0) >> 1)},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < p.min || n > p.max {
			return db.CallFilters{}, &ErrValidation{Field: p.name, Message: fmt.Sprintf("must be between %d and %d", p.min, p.max)}
		}
		*p.dst = n
	}

	return filters, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	filters, err := parseCallFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := s.calls.ListCalls(r.Context(), filters)
	if err != nil {
		s.log.WithError(err).Error("Failed to list calls")
		writeError(w, http.StatusInternalServerError, "Failed to list calls")
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleCallAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.calls.GetCallAnalytics(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to compute analytics")
		writeError(w, http.StatusInternalServerError, "Failed to compute analytics")
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// loadCall resolves the {id} path value; it writes the error response itself
func (s *Server) loadCall(w http.ResponseWriter, r *http.Request) (*db.Call, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid call ID")
		return nil, false
	}

	call, err := s.calls.GetCall(r.Context(), id)
	if err != nil {
		s.log.WithError(err).WithField("call_id", id.String()).Error("Failed to get call")
		writeError(w, http.StatusInternalServerError, "Failed to get call")
		return nil, false
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "Call not found")
		return nil, false
	}
	return call, true
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	if call, ok := s.loadCall(w, r); ok {
		writeJSON(w, http.StatusOK, call)
	}
}

func (s *Server) handleExportCall(w http.ResponseWriter, r *http.Request) {
	call, ok := s.loadCall(w, r)
	if !ok {
		return
	}

	data, err := json.MarshalIndent(call, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export call")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="call_%s.json"`, call.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// normalizeTags trims, drops blanks and removes duplicates, keeping order
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (s *Server) handleUpdateCallTags(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid call ID")
		return
	}

	var req types.UpdateTagsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	if err := s.calls.UpdateCallTags(r.Context(), id, normalizeTags(req.Tags)); err != nil {
		if errors.Is(err, db.ErrCallNotFound) {
			writeError(w, http.StatusNotFound, "Call not found")
			return
		}
		s.log.WithError(err).WithField("call_id", id.String()).Error("Failed to update tags")
		writeError(w, http.StatusInternalServerError, "Failed to update tags")
		return
	}

	call, err := s.calls.GetCall(r.Context(), id)
	if err != nil || call == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Tags updated successfully"})
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// handleDeleteCall removes the record and then its audio file
func (s *Server) handleDeleteCall(w http.ResponseWriter, r *http.Request) {
	call, ok := s.loadCall(w, r)
	if !ok {
		return
	}

	if err := s.calls.DeleteCall(r.Context(), call.ID); err != nil {
		if errors.Is(err, db.ErrCallNotFound) {
			writeError(w, http.StatusNotFound, "Call not found")
			return
		}
		s.log.WithError(err).WithField("call_id", call.ID.String()).Error("Failed to delete call")
		writeError(w, http.StatusInternalServerError, "Failed to delete call")
		return
	}

	if s.artifacts != nil && call.AudioFilePath != "" {
		if err := s.artifacts.Remove(call.AudioFilePath); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"call_id": call.ID.String(),
				"path":    call.AudioFilePath,
			}).Warn("Failed to remove audio file")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Call deleted successfully"})
}
