package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is the zap-backed implementation of Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// Compile-time assertion: *ZapLogger implements Logger.
var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a production-encoded logger writing to stderr at the
// given level.
func NewZapLogger(level Level) *ZapLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(levelToZap(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Build only fails on invalid configuration; ours is static.
		logger = zap.NewNop()
	}

	return &ZapLogger{sugar: logger.Sugar()}
}

// FromZap wraps an existing zap logger. Useful in tests with an observer
// core.
func FromZap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) must() *zap.SugaredLogger {
	if l == nil || l.sugar == nil {
		return zap.NewNop().Sugar()
	}

	return l.sugar
}

// Info logs at info level.
func (l *ZapLogger) Info(args ...any) { l.must().Info(args...) }

// Infof logs a formatted message at info level.
func (l *ZapLogger) Infof(format string, args ...any) { l.must().Infof(format, args...) }

// Warn logs at warn level.
func (l *ZapLogger) Warn(args ...any) { l.must().Warn(args...) }

// Warnf logs a formatted message at warn level.
func (l *ZapLogger) Warnf(format string, args ...any) { l.must().Warnf(format, args...) }

// Error logs at error level.
func (l *ZapLogger) Error(args ...any) { l.must().Error(args...) }

// Errorf logs a formatted message at error level.
func (l *ZapLogger) Errorf(format string, args ...any) { l.must().Errorf(format, args...) }

// Debug logs at debug level.
func (l *ZapLogger) Debug(args ...any) { l.must().Debug(args...) }

// Debugf logs a formatted message at debug level.
func (l *ZapLogger) Debugf(format string, args ...any) { l.must().Debugf(format, args...) }

// WithFields returns a child logger with additional key/value pairs.
//
//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.must().With(fields...)}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.must().Sync()
}

func levelToZap(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
