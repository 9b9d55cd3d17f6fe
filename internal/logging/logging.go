// Package logging provides the leveled logger shared by the offline core.
// Eviction data-loss events and fail-open read degradations are visible
// only here, never as errors to callers.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	level int
	base  *log.Logger
}

const (
	levelDebug = 10
	levelInfo  = 20
	levelWarn  = 30
	levelError = 40
)

func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func New(level string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{level: parseLevel(level), base: log.New(out, "", log.LstdFlags)}
}

// NewRotating logs to a size-rotated file. Used by the daemon so long-running
// processes do not grow an unbounded log.
func NewRotating(level, path string, maxSizeMB, maxBackups int) *Logger {
	return New(level, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	})
}

func (l *Logger) Debugf(format string, args ...any) { l.printf(levelDebug, "[DEBUG] ", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.printf(levelInfo, "[INFO] ", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.printf(levelWarn, "[WARN] ", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.printf(levelError, "[ERROR] ", format, args...) }

func (l *Logger) printf(level int, prefix, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	l.base.Printf(prefix+format, args...)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New("error", io.Discard)
}
