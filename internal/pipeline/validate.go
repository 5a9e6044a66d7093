package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces a client-supplied name to a safe ASCII file name.
// It returns "" when nothing usable is left.
func SanitizeFilename(name string) string {
	// Decompose accents so "é" keeps its base letter
	name = norm.NFKD.String(name)
	var b strings.Builder
	for _, r := range name {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	switch name {
	case "", "..", ".":
		return ""
	}
	return name
}

// TruncateForAnalysis cuts text to maxChars characters and marks the cut
func TruncateForAnalysis(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + TruncationMarker
}

// validate checks a submission and returns the sanitized name and the lower-cased extension
func (o Options) validate(sub Submission) (string, string, error) {
	if strings.TrimSpace(sub.Filename) == "" {
		return "", "", &ValidationError{Message: "No file selected", Cause: ErrNoFilename}
	}

	ext := strings.ToLower(filepath.Ext(sub.Filename))
	if !o.allowed(ext) {
		return "", "", &ValidationError{Filename: sub.Filename, Message: "Invalid file type", Cause: ErrUnsupportedType}
	}

	size := int64(len(sub.Data))
	if size > o.MaxUploadBytes {
		return "", "", &ValidationError{
			Filename: sub.Filename,
			Message:  fmt.Sprintf("File too large (max %dMB)", o.MaxUploadBytes/(1024*1024)),
			Cause:    ErrFileTooLarge,
		}
	}
	if size == 0 {
		return "", "", &ValidationError{Filename: sub.Filename, Message: "File is empty", Cause: ErrEmptyFile}
	}

	name := SanitizeFilename(sub.Filename)
	if name == "" {
		return "", "", &ValidationError{Filename: sub.Filename, Message: "Invalid filename", Cause: ErrInvalidFilename}
	}
	return name, ext, nil
}

func (o Options) allowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, a := range o.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
