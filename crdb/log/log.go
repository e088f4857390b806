package log

import (
	"fmt"
	"strings"
)

// Logger is the common logging interface consumed by lib-crdb packages.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	// WithFields returns a child logger with additional structured
	// key/value pairs attached to every entry.
	WithFields(fields ...any) Logger

	// Sync flushes any buffered entries.
	Sync() error
}

// Level represents the severity threshold of a logger.
type Level uint8

// Level constants, most severe first. Setting a logger to a given level
// enables that level and everything more severe.
const (
	ErrorLevel Level = iota
	WarnLevel
	InfoLevel
	DebugLevel
)

// String returns the string representation of a log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name into a Level constant.
func ParseLevel(lvl string) (Level, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}

	var l Level

	return l, fmt.Errorf("not a valid Level: %q", lvl)
}
