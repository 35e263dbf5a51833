package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// stdout is the console destination; tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// FileWriterConfig holds lumberjack rotation settings. Zero fields take the
// defaults below.
type FileWriterConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// DisableCompression keeps rotated files uncompressed.
	DisableCompression bool
}

const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

func (c FileWriterConfig) withDefaults() FileWriterConfig {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = DefaultMaxBackups
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = DefaultMaxAgeDays
	}
	return c
}

// NewFileWriter returns a rotating file WriteSyncer. The parent directory is
// created when missing.
func NewFileWriter(path string, cfg FileWriterConfig) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	cfg = cfg.withDefaults()
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   !cfg.DisableCompression,
	}), nil
}

// NewTeeCore tees console and file output. The file always gets JSON; the
// console gets coloured text in development and JSON otherwise. A nil
// fileWriter yields a console-only core.
func NewTeeCore(level zapcore.Level, console, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	consoleEncoder := zapcore.NewJSONEncoder(encoderConfig())
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, console, level)

	if fileWriter == nil {
		return consoleCore
	}
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), fileWriter, level)
	return zapcore.NewTee(consoleCore, fileCore)
}

// Field keys used in every encoded entry.
const (
	FieldTimestamp  = "timestamp"
	FieldLevel      = "level"
	FieldSource     = "source"
	FieldMessage    = "message"
	FieldCaller     = "caller"
	FieldStacktrace = "stacktrace"
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        FieldTimestamp,
		LevelKey:       FieldLevel,
		NameKey:        FieldSource,
		CallerKey:      FieldCaller,
		MessageKey:     FieldMessage,
		StacktraceKey:  FieldStacktrace,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := encoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = shortTimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05.000"))
}
