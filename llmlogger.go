package scripturepath

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLogger writes a transcript of every model interaction for one study to
// <dir>/<study id>.log. Later regenerations append to the same file.
type LLMLogger struct {
	file    *os.File
	mu      sync.Mutex
	studyID string
}

// NewLLMLogger opens the transcript for a study
func NewLLMLogger(dir, studyID string) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", studyID))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	return &LLMLogger{
		file:    file,
		studyID: studyID,
	}, nil
}

// LogGeneration writes the header of a full-study generation
func (ll *LLMLogger) LogGeneration(req GenerationRequest) {
	ll.Logf("=== Study Generation Log ===\n")
	ll.Logf("Study ID: %s\n", ll.studyID)
	ll.Logf("Topic: %s\n", req.Topic)
	ll.Logf("Difficulty: %s\n", req.Difficulty)
	ll.Logf("Length: %s\n", req.Length)
	ll.Logf("Tier: %s\n", req.Tier)
	ll.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	ll.Logf("========================\n\n")
}

// LogRegeneration writes the header of a section regeneration
func (ll *LLMLogger) LogRegeneration(rr RegenerationRequest) {
	ll.Logf("=== Section Regeneration (%s) ===\n", rr.SectionID)
	ll.Logf("Study ID: %s\n", ll.studyID)
	ll.Logf("Current Content Length: %d characters\n", len(rr.CurrentContent))
	ll.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	ll.Logf("========================\n\n")
}

// Logf writes a formatted log entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.writef(format, args...)
}

func (ll *LLMLogger) writef(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs an LLM request
func (ll *LLMLogger) LogLLMRequest(p Prompt) {
	ll.Logf("=== LLM REQUEST (%s) ===\n", p.Name)
	ll.Logf("System:\n%s\n", p.System)
	ll.Logf("Prompt:\n%s\n", p.User)
	ll.Logf("=====================\n\n")
}

// LogLLMResponse logs an LLM response
func (ll *LLMLogger) LogLLMResponse(name, response string) {
	ll.Logf("=== LLM RESPONSE (%s) ===\n", name)
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("======================\n\n")
}

// LogReport logs what validation repaired
func (ll *LLMLogger) LogReport(report *ValidationReport) {
	for _, f := range report.MissingFields {
		ll.Logf("Field %s: MISSING\n", f)
	}
	for _, id := range report.NeedsRegeneration {
		ll.Logf("Section %s: NEEDS REGENERATION\n", id)
	}
	for _, id := range report.UnknownSections {
		ll.Logf("Section %s: IGNORED - unknown section\n", id)
	}
	for _, d := range report.DroppedQuestions {
		ll.Logf("Quiz: DROPPED %s\n", d)
	}
	for _, w := range report.MarkupWarnings {
		ll.Logf("Markup: %s\n", w)
	}
}

// LogSectionResult logs the outcome for one section
func (ll *LLMLogger) LogSectionResult(sectionID, action, reason string) {
	ll.Logf("Section %s: %s - %s\n", sectionID, action, reason)
}

// Close closes the log file
func (ll *LLMLogger) Close() error {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.writef("=== Complete ===\n")
	ll.writef("Completed: %s\n", time.Now().Format(time.RFC3339))
	ll.writef("=============================\n\n")
	err := ll.file.Close()
	ll.file = nil
	return err
}
