// Package logger provides a minimal leveled logger for the ZaguanBlade client.
//
// The client runs embedded inside a desktop app, so output routing must stay
// configurable (SetOutput) and cheap to silence entirely.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int

const (
	// LevelTrace enables extremely verbose logs (protocol events, raw frames).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

var (
	mu       sync.RWMutex
	level    = LevelInfo
	std      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	levelTag = map[Level]string{
		LevelTrace: "TRACE",
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}
)

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

// SetFlags sets the underlying log flags used for all output.
func SetFlags(flags int) {
	mu.Lock()
	defer mu.Unlock()
	std.SetFlags(flags)
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Enabled reports whether a level would be emitted by the current configuration.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func emit(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	mu.RLock()
	defer mu.RUnlock()
	std.Printf("[%s] %s", levelTag[l], fmt.Sprintf(format, args...))
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { emit(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { emit(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { emit(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { emit(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { emit(LevelError, format, args...) }
