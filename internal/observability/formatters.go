// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/call-transcriber/internal/db"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// transcriptPreview is how many characters of a transcript are shown
	transcriptPreview = 200
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", inner, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if r := []rune(line); len(r) > inner {
			line = string(r[:inner-3]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", inner, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// wrap breaks text into lines of at most width runes on word boundaries
func wrap(text string, width int, indent string) string {
	var lines []string
	var line []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		if len(line) > 0 && len(line)+1+len(w) > width {
			lines = append(lines, indent+string(line))
			line = line[:0]
		}
		if len(line) > 0 {
			line = append(line, ' ')
		}
		line = append(line, w...)
	}
	if len(line) > 0 {
		lines = append(lines, indent+string(line))
	}
	return strings.Join(lines, "\n")
}

func preview(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

// PrintCall outputs a human-readable summary of an analyzed call.
func (p *Printer) PrintCall(call *db.Call) {
	if call == nil {
		return
	}

	var sb strings.Builder
	inner := boxWidth - 4

	sb.WriteString(fmt.Sprintf("ID:      %s\n", call.ID))
	sb.WriteString(fmt.Sprintf("File:    %s\n", call.Filename))
	sb.WriteString(fmt.Sprintf("Intent:  %s\n", call.Intent))
	sb.WriteString(fmt.Sprintf("Mood:    %s\n", call.Mood))
	if len(call.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("Tags:    %s\n", strings.Join(call.Tags, ", ")))
	}

	if call.Summary != "" {
		sb.WriteString("\nSummary:\n")
		sb.WriteString(wrap(call.Summary, inner-2, "  "))
		sb.WriteString("\n")
	}

	if len(call.Roles) > 0 {
		speakers := make([]string, 0, len(call.Roles))
		for speaker := range call.Roles {
			speakers = append(speakers, speaker)
		}
		sort.Strings(speakers)

		sb.WriteString("\nRoles:\n")
		for _, speaker := range speakers {
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", speaker, call.Roles[speaker]))
		}
	}

	if len(call.Emotions) > 0 {
		sb.WriteString(fmt.Sprintf("\nEmotions: %s\n", strings.Join(call.Emotions, ", ")))
	}

	// Insights
	if len(call.Insights) > 0 {
		sb.WriteString("\nInsights:\n")
		count := min(len(call.Insights), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(wrap("• "+call.Insights[i], inner-2, "  "))
			sb.WriteString("\n")
		}
		if len(call.Insights) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(call.Insights)-maxItemsToShow))
		}
	}

	if call.HasTranscript() {
		sb.WriteString("\nTranscript:\n")
		sb.WriteString(wrap(preview(call.Transcript, transcriptPreview), inner-2, "  "))
		sb.WriteString("\n")
	}

	p.printBox("CALL ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAnalytics outputs totals and the most used tags.
func (p *Printer) PrintAnalytics(a *db.CallAnalytics) {
	if a == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Calls:            %d\n", a.TotalCalls))
	sb.WriteString(fmt.Sprintf("With transcript:  %d\n", a.CallsWithTranscript))
	sb.WriteString(fmt.Sprintf("Tags per call:    %.2f\n", a.AverageTagsPerCall))

	if len(a.TagDistribution) > 0 {
		sb.WriteString("\nTop tags:\n")
		count := min(len(a.TagDistribution), maxItemsToShow)
		for i := 0; i < count; i++ {
			tc := a.TagDistribution[i]
			sb.WriteString(fmt.Sprintf("  %-24s %d\n", tc.Tag, tc.Count))
		}
		if len(a.TagDistribution) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(a.TagDistribution)-maxItemsToShow))
		}
	}

	p.printBox("CALL ANALYTICS", strings.TrimSuffix(sb.String(), "\n"))
}
