// Package logger provides level-gated, single-line logging for the
// anonymizer CLI.
//
// Each entry is written as one line with fixed-width columns:
//
//	2006-01-02 15:04:05.000 | MODULE       | run-id   | ACTION               | LEVEL | message
//
// Levels (lowest to highest): debug, info, warn, error.
// Entries below the configured minimum level are silently dropped.
//
// Original values detected as sensitive must never be passed to a Logger;
// log entity types, counts and placeholders instead.
//
// Usage:
//
//	log := logger.New("MAPPING", cfg.LogLevel, os.Stderr).WithRun(runID)
//	log.Infof("mapping_save", "wrote %d entries to %s", n, path)
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents a log severity.
type Level int

// Log severity constants, ordered lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger writes structured log lines for a single module.
type Logger struct {
	module string
	run    string
	level  Level
	out    *log.Logger
}

// New creates a Logger for the given module writing to w, gated at the
// given level string. A nil writer means os.Stderr. Unrecognized level
// strings default to "info".
func New(module, levelStr string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		module: strings.ToUpper(module),
		run:    "-",
		level:  parseLevel(levelStr),
		out:    log.New(w, "", 0),
	}
}

// Discard returns a Logger that drops every entry.
func Discard() *Logger {
	return &Logger{module: "-", run: "-", level: LevelError + 1, out: log.New(io.Discard, "", 0)}
}

// WithRun returns a copy of l that tags every line with the given run ID.
func (l *Logger) WithRun(runID string) *Logger {
	c := *l
	if len(runID) > 8 {
		runID = runID[:8]
	}
	c.run = runID
	return &c
}

// Module returns a copy of l logging under a different module name,
// sharing the same level, run tag and output.
func (l *Logger) Module(module string) *Logger {
	c := *l
	c.module = strings.ToUpper(module)
	return &c
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool { return level >= l.level }

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.write(LevelDebug, "DEBUG", action, msg) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.write(LevelInfo, "INFO ", action, msg) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.write(LevelWarn, "WARN ", action, msg) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(action, format string, args ...any) {
	if l.Enabled(LevelDebug) {
		l.Debug(action, fmt.Sprintf(format, args...))
	}
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	if l.Enabled(LevelInfo) {
		l.Info(action, fmt.Sprintf(format, args...))
	}
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.Warn(action, fmt.Sprintf(format, args...))
}

func (l *Logger) write(level Level, levelLabel, action, msg string) {
	if level < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("%s | %-12s | %-8s | %-22s | %s | %s", ts, l.module, l.run, action, levelLabel, msg)
}

// parseLevel converts a string to a Level, defaulting to LevelInfo.
func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
