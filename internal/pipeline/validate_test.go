package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "call.wav", want: "call.wav"},
		{input: "My Call 01.mp3", want: "My_Call_01.mp3"},
		{input: "../../etc/passwd.wav", want: "etc_passwd.wav"},
		{input: `C:\\calls\\a.wav`, want: "C_calls_a.wav"},
		{input: "résumé.flac", want: "resume.flac"},
		{input: "..", want: ""},
		{input: "日本.wav", want: "wav"},
		{input: "   ", want: ""},
		{input: "._hidden.ogg", want: "hidden.ogg"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.input))
		})
	}
}

func TestTruncateForAnalysis(t *testing.T) {
	assert.Equal(t, "short", TruncateForAnalysis("short", 1000))
	assert.Equal(t, "abc"+TruncationMarker, TruncateForAnalysis("abcdef", 3))
	assert.Equal(t, "日本"+TruncationMarker, TruncateForAnalysis("日本語です", 2))
	assert.Equal(t, "abcdef", TruncateForAnalysis("abcdef", 0))

	long := strings.Repeat("a", 1500)
	got := TruncateForAnalysis(long, DefaultMaxAnalysisChars)
	assert.Equal(t, DefaultMaxAnalysisChars+len(TruncationMarker), len(got))
	assert.True(t, strings.HasSuffix(got, "... [truncated]"))
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxUploadBytes = 1024 * 1024

	tests := []struct {
		name     string
		sub      Submission
		wantErr  error
		wantMsg  string
		wantName string
		wantExt  string
	}{
		{name: "valid wav", sub: Submission{Filename: "call.wav", Data: []byte("x")}, wantName: "call.wav", wantExt: ".wav"},
		{name: "upper-case extension", sub: Submission{Filename: "CALL.MP3", Data: []byte("x")}, wantName: "CALL.MP3", wantExt: ".mp3"},
		{name: "no filename", sub: Submission{Data: []byte("x")}, wantErr: ErrNoFilename, wantMsg: "No file selected"},
		{name: "pdf", sub: Submission{Filename: "doc.pdf", Data: []byte("x")}, wantErr: ErrUnsupportedType, wantMsg: "Invalid file type"},
		{name: "no extension", sub: Submission{Filename: "wav", Data: []byte("x")}, wantErr: ErrUnsupportedType},
		{name: "empty", sub: Submission{Filename: "call.wav"}, wantErr: ErrEmptyFile, wantMsg: "File is empty"},
		{
			name:    "too large",
			sub:     Submission{Filename: "call.wav", Data: make([]byte, 1024*1024+1)},
			wantErr: ErrFileTooLarge,
			wantMsg: "File too large (max 1MB)",
		},
		{name: "path components dropped", sub: Submission{Filename: "../../secret/call.wav", Data: []byte("x")}, wantName: "secret_call.wav", wantExt: ".wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ext, err := opts.validate(tt.sub)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var validationErr *ValidationError
				assert.True(t, errors.As(err, &validationErr))
				if tt.wantMsg != "" {
					assert.Equal(t, tt.wantMsg, err.Error())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}
