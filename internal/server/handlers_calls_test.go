package server

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/call-transcriber/internal/db"
	"github.com/jonathan/call-transcriber/internal/pipeline"
)

func sampleCall() *db.Call {
	return &db.Call{
		ID:            uuid.New(),
		Filename:      "support.wav",
		AudioFilePath: "/uploads/abc.wav",
		Transcript:    "hello there",
		Summary:       "A greeting",
		Tags:          []string{"inquiry"},
		TagsOriginal:  []string{"inquiry"},
		Roles:         map[string]string{"speaker1": "agent"},
		Intent:        "support",
		Mood:          "neutral",
	}
}

// uploadRequest builds a multipart upload; an empty filename omits the file part
func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/calls", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUploadCall_Accepted(t *testing.T) {
	env := newTestEnv(t)
	req := uploadRequest(t, "call.wav", []byte("RIFF-audio"), map[string]string{
		"session_id": "session-1",
		"language":   "es",
	})

	w := env.do(t, req, env.token(t))

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp UploadResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Equal(t, env.uploader.callID.String(), resp.CallID)
	assert.Equal(t, "processing", resp.Status)

	require.Len(t, env.uploader.submissions, 1)
	sub := env.uploader.submissions[0]
	assert.Equal(t, "call.wav", sub.Filename)
	assert.Equal(t, []byte("RIFF-audio"), sub.Data)
	assert.Equal(t, "es", sub.Language)
}

func TestHandleUploadCall_SessionID(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		header string
		want   string
	}{
		{"form field", "from-form", "from-header", "from-form"},
		{"header", "", "from-header", "from-header"},
		{"generated", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			fields := map[string]string{}
			if tt.field != "" {
				fields["session_id"] = tt.field
			}
			req := uploadRequest(t, "call.mp3", []byte("id3"), fields)
			if tt.header != "" {
				req.Header.Set("X-Session-ID", tt.header)
			}

			w := env.do(t, req, env.token(t))
			require.Equal(t, http.StatusAccepted, w.Code)

			var resp UploadResponse
			decodeBody(t, w, &resp)
			if tt.want == "" {
				_, err := uuid.Parse(resp.SessionID)
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.want, resp.SessionID)
			}
			assert.Equal(t, resp.SessionID, env.uploader.submissions[0].SessionID)
		})
	}
}

func TestHandleUploadCall_MissingFileStillSubmits(t *testing.T) {
	env := newTestEnv(t)
	env.uploader.err = &pipeline.ValidationError{Message: "No file selected", Cause: pipeline.ErrNoFilename}

	req := uploadRequest(t, "", nil, map[string]string{"session_id": "s-empty"})
	w := env.do(t, req, env.token(t))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "No file selected", body["error"])
	assert.Equal(t, "s-empty", body["session_id"])

	require.Len(t, env.uploader.submissions, 1)
	assert.Empty(t, env.uploader.submissions[0].Filename)
}

func TestHandleUploadCall_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantError string
	}{
		{"invalid type", &pipeline.ValidationError{Message: "Invalid file type", Cause: pipeline.ErrUnsupportedType}, http.StatusBadRequest, "Invalid file type"},
		{"too large", &pipeline.ValidationError{Message: "File too large", Cause: pipeline.ErrFileTooLarge}, http.StatusRequestEntityTooLarge, "File too large"},
		{"storage failure", errors.New("disk full"), http.StatusInternalServerError, "Failed to process upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.uploader.err = tt.err

			w := env.do(t, uploadRequest(t, "call.wav", []byte("x"), nil), env.token(t))

			assert.Equal(t, tt.wantCode, w.Code)
			var body map[string]string
			decodeBody(t, w, &body)
			assert.Equal(t, tt.wantError, body["error"])
			assert.NotEmpty(t, body["session_id"])
		})
	}
}

func TestHandleUploadCall_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/calls", strings.NewReader(`{"file":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		w := env.do(t, req, env.token(t))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("body over the limit", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), int(env.uploader.MaxUploadBytes())+multipartOverhead+1)
		w := env.do(t, uploadRequest(t, "call.wav", big, nil), env.token(t))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	assert.Empty(t, env.uploader.submissions)
}

func TestHandleUploadCall_OversizedFileReachesPipeline(t *testing.T) {
	env := newTestEnv(t)
	data := bytes.Repeat([]byte("a"), int(env.uploader.MaxUploadBytes())+10)

	w := env.do(t, uploadRequest(t, "call.wav", data, nil), env.token(t))
	require.Equal(t, http.StatusAccepted, w.Code)

	// Only one byte past the limit is read
	require.Len(t, env.uploader.submissions, 1)
	assert.Len(t, env.uploader.submissions[0].Data, int(env.uploader.MaxUploadBytes())+1)
}

func TestParseCallFilters(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    db.CallFilters
		wantErr string
	}{
		{name: "empty", query: "", want: db.CallFilters{}},
		{name: "tag", query: "tag=+billing+", want: db.CallFilters{Tag: "billing"}},
		{name: "paging", query: "limit=25&skip=50", want: db.CallFilters{Limit: 25, Skip: 50}},
		{name: "limit zero", query: "limit=0", wantErr: "limit"},
		{name: "limit too big", query: fmt.Sprintf("limit=%d", db.MaxCallLimit+1), wantErr: "limit"},
		{name: "negative skip", query: "skip=-1", wantErr: "skip"},
		{name: "non numeric", query: "limit=ten", wantErr: "limit"},
		{name: "bad date", query: "start_date=yesterday", wantErr: "start_date"},
		{name: "bad end date", query: "end_date=2026-13-01", wantErr: "end_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/calls?"+tt.query, nil)
			got, err := parseCallFilters(req)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCallFilters_Dates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/calls?start_date=2026-01-02&end_date=2026-02-01T15:04:05Z", nil)
	got, err := parseCallFilters(req)
	require.NoError(t, err)

	require.NotNil(t, got.StartDate)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.StartDate.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, got.EndDate.Equal(time.Date(2026, 2, 1, 15, 4, 5, 0, time.UTC)))
}

func TestHandleListCalls(t *testing.T) {
	call := sampleCall()
	env := newTestEnv(t, call)
	token := env.token(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/calls?tag=inquiry&limit=10", nil), token)
	require.Equal(t, http.StatusOK, w.Code)

	var calls []db.Call
	decodeBody(t, w, &calls)
	require.Len(t, calls, 1)
	assert.Equal(t, call.ID, calls[0].ID)
	assert.Equal(t, "inquiry", env.calls.lastFilters.Tag)
	assert.Equal(t, 10, env.calls.lastFilters.Limit)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/calls?limit=-4", nil), token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.calls.err = errors.New("connection reset")
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/calls", nil), token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestHandleCallAnalytics(t *testing.T) {
	env := newTestEnv(t, sampleCall(), sampleCall())

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/calls/analytics", nil), env.token(t))
	require.Equal(t, http.StatusOK, w.Code)

	var analytics db.CallAnalytics
	decodeBody(t, w, &analytics)
	assert.Equal(t, 2, analytics.TotalCalls)
}

func TestHandleGetCall(t *testing.T) {
	call := sampleCall()
	env := newTestEnv(t, call)
	token := env.token(t)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"found", "/api/calls/" + call.ID.String(), http.StatusOK},
		{"not found", "/api/calls/" + uuid.NewString(), http.StatusNotFound},
		{"invalid id", "/api/calls/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil), token)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				var got db.Call
				decodeBody(t, w, &got)
				assert.Equal(t, call.Transcript, got.Transcript)
			}
		})
	}
}

func TestHandleExportCall(t *testing.T) {
	call := sampleCall()
	env := newTestEnv(t, call)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/calls/"+call.ID.String()+"/export", nil), env.token(t))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fmt.Sprintf(`attachment; filename="call_%s.json"`, call.ID), w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Body.String(), "\n  \"filename\": \"support.wav\"")
}

func TestHandleUpdateCallTags(t *testing.T) {
	call := sampleCall()
	env := newTestEnv(t, call)
	token := env.token(t)
	path := "/api/calls/" + call.ID.String() + "/tags"

	tests := []struct {
		name     string
		path     string
		body     string
		code     int
		wantTags []string
	}{
		{"normalized", path, `{"tags":[" sale ","sale","follow-up"]}`, http.StatusOK, []string{"sale", "follow-up"}},
		{"cleared", path, `{"tags":[]}`, http.StatusOK, []string{}},
		{"missing tags", path, `{}`, http.StatusBadRequest, nil},
		{"blank tag", path, `{"tags":[""]}`, http.StatusBadRequest, nil},
		{"bad json", path, `{"tags":`, http.StatusBadRequest, nil},
		{"invalid id", "/api/calls/xyz/tags", `{"tags":["a"]}`, http.StatusBadRequest, nil},
		{"unknown call", "/api/calls/" + uuid.NewString() + "/tags", `{"tags":["a"]}`, http.StatusNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := env.do(t, req, token)

			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.wantTags != nil {
				var got db.Call
				decodeBody(t, w, &got)
				assert.Equal(t, tt.wantTags, got.Tags)
				assert.Equal(t, []string{"inquiry"}, got.TagsOriginal)
			}
		})
	}
}

func TestHandleDeleteCall(t *testing.T) {
	call := sampleCall()
	env := newTestEnv(t, call)
	token := env.token(t)

	w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/calls/"+call.ID.String(), nil), token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{call.AudioFilePath}, env.remover.removed)

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/calls/"+call.ID.String(), nil), token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteCall_RemoveFailureIsNotFatal(t *testing.T) {
	call := sampleCall()
	env := newTestEnv(t, call)
	env.remover.err = errors.New("permission denied")

	w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/calls/"+call.ID.String(), nil), env.token(t))

	assert.Equal(t, http.StatusOK, w.Code)
	_, stillThere := env.calls.calls[call.ID]
	assert.False(t, stillThere)
}
