package log

// NoneLogger discards every log entry. It is the default implementation
// wherever a Logger was not provided.
type NoneLogger struct{}

// Compile-time assertion: *NoneLogger implements Logger.
var _ Logger = (*NoneLogger)(nil)

// Info drops the entry.
func (l *NoneLogger) Info(_ ...any) {}

// Infof drops the entry.
func (l *NoneLogger) Infof(_ string, _ ...any) {}

// Warn drops the entry.
func (l *NoneLogger) Warn(_ ...any) {}

// Warnf drops the entry.
func (l *NoneLogger) Warnf(_ string, _ ...any) {}

// Error drops the entry.
func (l *NoneLogger) Error(_ ...any) {}

// Errorf drops the entry.
func (l *NoneLogger) Errorf(_ string, _ ...any) {}

// Debug drops the entry.
func (l *NoneLogger) Debug(_ ...any) {}

// Debugf drops the entry.
func (l *NoneLogger) Debugf(_ string, _ ...any) {}

// WithFields returns the same no-op logger.
//
//nolint:ireturn
func (l *NoneLogger) WithFields(_ ...any) Logger { return l }

// Sync is a no-op and always returns nil.
func (l *NoneLogger) Sync() error { return nil }
