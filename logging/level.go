package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a level name to a zapcore.Level, returning def for empty
// or unknown input.
func ParseLevel(s string, def zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return def
	}
}
