// Package prompts holds the model instructions shipped inside the binary.
// Each JSON file maps prompt names to template text using {{.Name}} placeholders.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var files embed.FS

// Set is one parsed prompt file
type Set struct {
	file    string
	entries map[string]string
}

var sets sync.Map // file name -> *Set

var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9_]*)\}\}`)

// Load returns the prompt set in an embedded file, parsing it on first use
func Load(file string) (*Set, error) {
	if s, ok := sets.Load(file); ok {
		return s.(*Set), nil
	}

	raw, err := files.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", file, err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", file, err)
	}
	for key, text := range entries {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt %q in %s is empty", key, file)
		}
	}

	s, _ := sets.LoadOrStore(file, &Set{file: file, entries: entries})
	return s.(*Set), nil
}

// Get returns the raw template text of a prompt
func (s *Set) Get(key string) (string, error) {
	text, ok := s.entries[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, s.file)
	}
	return text, nil
}

// Render fills every placeholder of a prompt. A placeholder without a value is an error.
func (s *Set) Render(key string, data map[string]string) (string, error) {
	text, err := s.Get(key)
	if err != nil {
		return "", err
	}
	var missing []string
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := data[name]; ok {
			return v
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %q in %s: no value for %s", key, s.file, strings.Join(missing, ", "))
	}
	return out, nil
}

// Keys lists the prompt names in sorted order
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MustRender is Render for prompts the binary cannot run without
func MustRender(file, key string, data map[string]string) string {
	s, err := Load(file)
	if err == nil {
		var text string
		if text, err = s.Render(key, data); err == nil {
			return text
		}
	}
	panic(fmt.Sprintf("failed to load prompt: %v", err))
}

// reset drops parsed sets so tests observe a cold load
func reset() {
	sets.Range(func(k, _ any) bool {
		sets.Delete(k)
		return true
	})
}
