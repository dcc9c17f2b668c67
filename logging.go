package apifetch

import "github.com/loykin/apifetch/internal/common"

// Logging API

type (
	LogLevel = common.LogLevel
	Logger   = common.Logger
	Masker   = common.Masker
)

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

func NewLogger(level LogLevel) *Logger      { return common.NewLogger(level) }
func NewJSONLogger(level LogLevel) *Logger  { return common.NewJSONLogger(level) }
func NewColorLogger(level LogLevel) *Logger { return common.NewColorLogger(level) }

// SetDefaultLogger replaces the logger used by executors without their own.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }
func GetLogger() *Logger         { return common.GetLogger() }

// EnableMasking toggles masking of credentials in logged headers and values.
func EnableMasking(enabled bool) { common.EnableMasking(enabled) }
func IsMaskingEnabled() bool     { return common.IsMaskingEnabled() }
