// Package logx provides structured logging with component-scoped loggers and
// env-controlled debug domains.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes leveled, component-tagged log lines.
type Logger struct {
	component string
	logger    *log.Logger
}

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// debugConfig controls debug logging behavior. Debug output is off unless
// DEBUG=1; DEBUG_DOMAINS=analyzer,executor narrows it to specific components.
type debugSettings struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

// Entry is one captured log line, kept in the in-memory ring buffer so
// operational surfaces can show recent activity without tailing files.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

type ringBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

//nolint:gochecknoglobals // Process-wide debug switches and ring buffer
var (
	debugCfg   = &debugSettings{}
	debugMu    sync.RWMutex
	recentLogs = &ringBuffer{maxSize: 1000}
)

//nolint:gochecknoinits // Env var initialization must happen before any logging
func init() {
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugMu.Lock()
		debugCfg.Enabled = true
		debugMu.Unlock()
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugMu.Lock()
		debugCfg.Domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugCfg.Domains[strings.TrimSpace(d)] = true
		}
		debugMu.Unlock()
	}
}

// NewLogger creates a logger tagged with the given component name
// (e.g. "analyzer", "plan-executor", "circuit-breaker").
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout clean for CLI use
	}
}

// SetDebug enables or disables debug logging for the whole process.
func SetDebug(enabled bool) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugCfg.Enabled = enabled
}

// SetDebugDomains restricts debug output to the named components.
// An empty list re-enables all domains.
func SetDebugDomains(domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	if len(domains) == 0 {
		debugCfg.Domains = nil
		return
	}
	debugCfg.Domains = make(map[string]bool)
	for _, d := range domains {
		debugCfg.Domains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabled reports whether debug logging is on for the given component.
func IsDebugEnabled(component string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugCfg.Enabled {
		return false
	}
	if debugCfg.Domains == nil {
		return true
	}
	return debugCfg.Domains[component]
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)

	recentLogs.add(Entry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

// Debug logs a debug message, subject to the DEBUG / DEBUG_DOMAINS switches.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (b *ringBuffer) add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// RecentEntries returns captured log entries, optionally filtered by component
// and a lower timestamp bound.
func RecentEntries(component string, since time.Time) []Entry {
	recentLogs.mu.RLock()
	defer recentLogs.mu.RUnlock()

	filtered := make([]Entry, 0, len(recentLogs.entries))
	for i := range recentLogs.entries {
		e := &recentLogs.entries[i]
		if component != "" && !strings.EqualFold(e.Component, component) {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse("2006-01-02T15:04:05.000Z", e.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		filtered = append(filtered, *e)
	}
	return filtered
}
