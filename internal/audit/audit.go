// Package audit writes the append-only text streams a run leaves behind:
// the prompts sent to the LLM, its raw and parsed responses, the extracted
// reasoning, the per-cycle and per-order history, and a separate
// single-line alarm stream for urgent conditions.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"futures-llm-agent/internal/model"

	"github.com/rs/zerolog/log"
)

const separator = "------------------------------------------------------------\n"

// Logger owns the four append-only streams plus the alarm file, each
// guarded by its own mutex so concurrent writers (a cycle's snapshot
// fetches run concurrently, but audit writes happen on the sequential main
// path) never interleave a single record.
type Logger struct {
	dir string

	inputMu  sync.Mutex
	outputMu sync.Mutex
	thinkMu  sync.Mutex
	histMu   sync.Mutex
	alarmMu  sync.Mutex
}

// New ensures dir exists and returns a Logger writing into it.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &Logger{dir: dir}, nil
}

func (l *Logger) path(name string) string {
	return filepath.Join(l.dir, name)
}

func (l *Logger) append(mu *sync.Mutex, name, record string) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(l.path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error().Str("component", "audit").Str("file", name).Err(err).Msg("failed to open audit stream")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(record); err != nil {
		log.Error().Str("component", "audit").Str("file", name).Err(err).Msg("failed to write audit record")
	}
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
}

// LogInput records the full system+user prompt pair sent to the LLM for one
// cycle (input.txt).
func (l *Logger) LogInput(callCount int, systemPrompt, userPrompt string) {
	record := fmt.Sprintf("[%s] call #%d\n%sSYSTEM PROMPT:\n%s\n\nUSER PROMPT:\n%s\n%s",
		timestamp(), callCount, separator, systemPrompt, userPrompt, separator)
	l.append(&l.inputMu, "input.txt", record)
}

// LogOutput records the raw LLM response, the number of decisions it
// parsed out, the analysis quality, and how long the call took
// (output.txt).
func (l *Logger) LogOutput(callCount int, rawContent string, quality model.AnalysisQuality, decisionCount int, elapsed time.Duration) {
	record := fmt.Sprintf("[%s] call #%d, quality=%s, decisions=%d, elapsed=%s\n%sRAW RESPONSE:\n%s\n%s",
		timestamp(), callCount, quality, decisionCount, elapsed, separator, rawContent, separator)
	l.append(&l.outputMu, "output.txt", record)
}

// LogThinking records the session context, the extracted reasoning block,
// and a one-line final-decision summary for the cycle (think.txt).
func (l *Logger) LogThinking(stats model.SessionStats, marketSummary, thinking, finalDecision string) {
	elapsed := time.Since(stats.StartedAt)
	record := fmt.Sprintf(
		"[%s] cycle #%d, elapsed=%s\n%sMARKET SUMMARY:\n%s\n\nREASONING:\n%s\n\nFINAL DECISION:\n%s\n%s",
		timestamp(), stats.CyclesCompleted, elapsed.Round(time.Second), separator,
		marketSummary, thinking, finalDecision, separator)
	l.append(&l.thinkMu, "think.txt", record)
}

// LogCycle records a one-line summary of a completed analysis cycle
// (history.txt): decision counts and any alarm-worthy outcome.
func (l *Logger) LogCycle(stats model.SessionStats) {
	record := fmt.Sprintf(
		"[%s] cycle #%d complete: executed=%d held=%d rejected=%d filled=%d failed=%d duration=%s\n",
		timestamp(), stats.CyclesCompleted, stats.DecisionsExecuted, stats.DecisionsHeld,
		stats.DecisionsRejected, stats.OrdersFilled, stats.OrdersFailed, stats.LastCycleDuration)
	l.append(&l.histMu, "history.txt", record)
}

// LogExecution records one order's outcome (history.txt): symbol, action,
// final state, fill details or failure reason.
func (l *Logger) LogExecution(rec model.ExecutionRecord) {
	status := string(rec.State)
	detail := fmt.Sprintf("filledQty=%.6f filledPrice=%.4f", rec.FilledQty, rec.FilledPrice)
	if rec.State == model.StateFailed {
		detail = "reason=" + rec.FailureReason
	}
	record := fmt.Sprintf("[%s] %s %s state=%s %s\n",
		timestamp(), rec.Symbol, rec.Decision.Action, status, detail)
	l.append(&l.histMu, "history.txt", record)
}

// LogAlarm writes a single-line ISO-timestamp — message record to
// alarm.txt for urgent conditions: retry exhaustion, order failures,
// protective-order placement failures.
func (l *Logger) LogAlarm(message string) {
	record := fmt.Sprintf("%s — %s\n", time.Now().UTC().Format(time.RFC3339), message)
	l.append(&l.alarmMu, "alarm.txt", record)
	log.Warn().Str("component", "audit").Msg(message)
}
