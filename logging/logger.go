// Package logging provides the zap-based structured logger used by every
// pixelbatch component. Output is teed to the console and a rotating JSON
// log file, and credential material is redacted before it reaches either.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures NewLogger.
type Options struct {
	// Development selects coloured console output at debug level.
	// Production uses JSON on both outputs at info level.
	Development bool

	// FilePath is the rotating log file. Empty disables file output.
	FilePath string

	// Level overrides the mode's default level when non-empty
	// ("debug", "info", "warn", "error").
	Level string

	// Rotation overrides the default lumberjack settings.
	Rotation FileWriterConfig
}

// Logger wraps zap.Logger and redacts credentials from every field.
//
// Example:
//
//	logger, err := logging.NewLogger(logging.Options{Development: true, FilePath: "app.log"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Named("orchestrator").Info("run started", zap.Int("tasks", 7))
type Logger struct {
	zap *zap.Logger
}

// NewLogger builds a Logger for the given options.
func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	level = ParseLevel(opts.Level, level)

	var fileWriter zapcore.WriteSyncer
	if opts.FilePath != "" {
		w, err := NewFileWriter(opts.FilePath, opts.Rotation)
		if err != nil {
			return nil, fmt.Errorf("logging: create file writer: %w", err)
		}
		fileWriter = w
	}

	core := NewTeeCore(level, zapcore.Lock(zapcore.AddSync(stdout)), fileWriter, opts.Development)
	return &Logger{zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}, nil
}

// NewFromZap wraps an existing zap.Logger. Tests use it with zaptest or an
// observer core.
func NewFromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{zap: z.WithOptions(zap.AddCallerSkip(1))}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes buffered entries. Call before exiting.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(RedactSensitiveData(msg), redactFields(fields)...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(RedactSensitiveData(msg), redactFields(fields)...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(RedactSensitiveData(msg), redactFields(fields)...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(RedactSensitiveData(msg), redactFields(fields)...)
}

// With returns a child logger that adds fields to every entry.
//
// Example:
//
//	runLog := logger.With(zap.String("run_id", runID))
//	runLog.Info("batch dispatched", zap.Int("batch", 2))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(redactFields(fields)...)}
}

// Named returns a child logger with a sub-name, shown as the source field.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// Zap exposes the underlying logger for libraries that want a *zap.Logger.
// Entries logged through it bypass redaction.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// redactFields filters credential material from fields before encoding.
func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

func redactField(f zap.Field) zap.Field {
	if IsSensitiveField(f.Key) {
		return zap.String(f.Key, RedactedPlaceholder)
	}

	switch f.Type {
	case zapcore.StringType:
		if r := RedactSensitiveData(f.String); r != f.String {
			return zap.String(f.Key, r)
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			msg := err.Error()
			if ContainsSensitiveData(msg) {
				return zap.String(f.Key, RedactSensitiveData(msg))
			}
		}
	}
	return f
}
