package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/call-transcriber/internal/observability"
	"github.com/jonathan/call-transcriber/internal/pipeline"
	"github.com/jonathan/call-transcriber/internal/progress"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one recording through the pipeline and print its progress",
	Long: `Stores the recording, creates the call record, transcribes and analyzes it exactly as an upload through the API would.
Progress events are printed as they happen and the saved call is summarized at the end.`,
	RunE: runProcess,
}

var (
	processFile     string
	processLanguage string
	processJSON     bool
)

func init() {
	processCmd.Flags().StringVarP(&processFile, "file", "f", "", "Path to the audio file")
	processCmd.Flags().StringVarP(&processLanguage, "language", "l", "", "Language hint for transcription (optional)")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "Print progress events as JSON lines")
	_ = processCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(processCmd)
}

// eventPrinter writes the events of one session and keeps the terminal one
type eventPrinter struct {
	out       io.Writer
	sessionID string
	asJSON    bool

	mu       sync.Mutex
	terminal *progress.Event
}

func (p *eventPrinter) print(channel string, ev progress.Event) {
	// Every event also arrives on the global channel
	if channel != p.sessionID {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Stage.IsTerminal() {
		cp := ev
		p.terminal = &cp
	}

	if p.asJSON {
		data, err := json.Marshal(ev)
		if err == nil {
			_, _ = fmt.Fprintln(p.out, string(data))
		}
		return
	}
	_, _ = fmt.Fprintf(p.out, "[%3d%%] %-12s %s\n", ev.Progress, ev.Stage, ev.Message)
}

func (p *eventPrinter) result() *progress.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminal
}

func runProcess(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(processFile)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	printer := &eventPrinter{out: cmd.OutOrStdout(), sessionID: "cli-" + uuid.NewString(), asJSON: processJSON}
	recorder := progress.NewRecorder()
	recorder.OnEmit = printer.print

	coord, err := a.coordinator(recorder)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if _, err := coord.Submit(ctx, pipeline.Submission{
		Data:      data,
		Filename:  filepath.Base(processFile),
		SessionID: printer.sessionID,
		Language:  processLanguage,
	}); err != nil {
		return err
	}
	if err := coord.Wait(); err != nil {
		return err
	}

	return reportResult(cmd.OutOrStdout(), printer.result(), processJSON)
}

// reportResult prints the saved call, or turns a failed run into an error
func reportResult(out io.Writer, ev *progress.Event, asJSON bool) error {
	switch {
	case ev == nil:
		return fmt.Errorf("pipeline ended without a result")
	case ev.Stage == progress.StageError:
		return fmt.Errorf("processing failed: %s", ev.Message)
	case ev.Call == nil:
		return nil
	case !asJSON:
		observability.NewPrinter(out).PrintCall(ev.Call)
		return nil
	}

	data, err := json.MarshalIndent(ev.Call, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode call: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
