package common

import (
	"io"
	"log/slog"
	"os"
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Logger provides a centralized logging interface for apifetch
type Logger struct {
	*slog.Logger
	level  LogLevel
	masker *Masker
}

// logOutput is where the constructors below write. Stdout is kept free for command output.
var logOutput io.Writer = os.Stderr

// NewLogger creates a new structured logger with the specified level
func NewLogger(level LogLevel) *Logger {
	return NewTextLoggerTo(logOutput, level)
}

// NewTextLoggerTo creates a text logger writing to w.
func NewTextLoggerTo(w io.Writer, level LogLevel) *Logger {
	m := NewMasker()
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level.ToSlogLevel(),
		ReplaceAttr: maskingReplaceAttr(m),
	})
	return &Logger{Logger: slog.New(handler), level: level, masker: m}
}

// NewJSONLogger creates a structured logger with JSON output
func NewJSONLogger(level LogLevel) *Logger {
	return NewJSONLoggerTo(logOutput, level)
}

// NewJSONLoggerTo creates a JSON logger writing to w.
func NewJSONLoggerTo(w io.Writer, level LogLevel) *Logger {
	m := NewMasker()
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level.ToSlogLevel(),
		ReplaceAttr: maskingReplaceAttr(m),
	})
	return &Logger{Logger: slog.New(handler), level: level, masker: m}
}

// NewColorLogger creates a logger using the colorized handler.
func NewColorLogger(level LogLevel) *Logger {
	m := NewMasker()
	h := NewColorHandler(logOutput, &slog.HandlerOptions{Level: level.ToSlogLevel()})
	h.SetMasker(m)
	h.SetColorEnabled(true)
	return &Logger{Logger: slog.New(h), level: level, masker: m}
}

// maskingReplaceAttr masks attribute values whose key or content looks sensitive.
func maskingReplaceAttr(m *Masker) func(groups []string, a slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if !m.IsEnabled() {
			return a
		}
		switch a.Value.Kind() {
		case slog.KindString:
			if v, ok := m.MaskValue(a.Key, a.Value.String()).(string); ok {
				return slog.String(a.Key, v)
			}
		case slog.KindAny:
			if hdrs, ok := a.Value.Any().(map[string]string); ok {
				return slog.Any(a.Key, m.MaskHeaders(hdrs))
			}
		}
		return a
	}
}

// EnableMasking toggles masking on this logger's handler.
func (l *Logger) EnableMasking(enabled bool) {
	if l.masker != nil {
		l.masker.SetEnabled(enabled)
	}
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level, masker: l.masker}
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithRequest returns a logger with HTTP request context
func (l *Logger) WithRequest(method, url string) *Logger {
	return l.with("method", method, "url", url)
}

// WithAttempt returns a logger with retry attempt context
func (l *Logger) WithAttempt(attempt, maxAttempts int) *Logger {
	return l.with("attempt", attempt, "max_attempts", maxAttempts)
}

// WithSink returns a logger with destination sink context
func (l *Logger) WithSink(scheme string) *Logger {
	return l.with("sink", scheme)
}

// WithStore returns a logger with store context
func (l *Logger) WithStore(storeType string) *Logger {
	return l.with("store", storeType)
}

// WithRun returns a logger with run id context
func (l *Logger) WithRun(runID string) *Logger {
	return l.with("run_id", runID)
}

// Global default logger instance
var defaultLogger = NewLogger(LogLevelInfo)

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetLogger returns the default logger
func GetLogger() *Logger {
	return defaultLogger
}

// LogError logs an error with context
func LogError(msg string, err error, attrs ...any) {
	args := append([]any{"error", err}, attrs...)
	defaultLogger.Error(msg, args...)
}

// LogInfo logs informational message
func LogInfo(msg string, attrs ...any) {
	defaultLogger.Info(msg, attrs...)
}

// LogDebug logs debug message
func LogDebug(msg string, attrs ...any) {
	defaultLogger.Debug(msg, attrs...)
}

// LogWarn logs warning message
func LogWarn(msg string, attrs ...any) {
	defaultLogger.Warn(msg, attrs...)
}
