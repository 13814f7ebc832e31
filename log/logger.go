// Package log provides structured JSON logging for ghostwriter.
//
// Run loggers stamp every entry with the story and run identity; component
// loggers stamp the long-lived component name instead. Call-site fields are
// nested under "fields" so they never collide with the identity keys.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/ghostwriter/types"
)

// level is shared by every logger built by this package.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// SetLevel changes the minimum level of all loggers, including ones
// already created. Accepts debug, info, warn or error.
func SetLevel(name string) error {
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", name)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current minimum level name.
func Level() string {
	return level.Level().String()
}

// Logger is a structured logger. The zero value is not usable.
type Logger struct {
	zap *zap.Logger
}

// NewLogger returns a run logger writing to stderr.
func NewLogger(runMeta *types.RunMeta) *Logger {
	return newLoggerWithWriter(runMeta, os.Stderr)
}

// NewComponentLogger returns a logger for a component that outlives any
// single run, such as the HTTP server or the signer.
func NewComponentLogger(component string) *Logger {
	return &Logger{zap: zap.New(newCore(os.Stderr)).With(zap.String("component", component))}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func newLoggerWithWriter(runMeta *types.RunMeta, w io.Writer) *Logger {
	return &Logger{zap: zap.New(newCore(w)).With(runFields(runMeta)...)}
}

func runFields(m *types.RunMeta) []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", m.RunID),
		zap.String("story_id", string(m.StoryID)),
		zap.Int("attempt", m.Attempt),
	}
	if m.ParentRunID != nil {
		fields = append(fields, zap.String("parent_run_id", *m.ParentRunID))
	}
	return fields
}

func newCore(w io.Writer) zapcore.Core {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	return zapcore.NewCore(enc, zapcore.AddSync(w), level)
}

// WithOutput returns a copy of l writing to w, keeping its fields.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := newCore(w)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

// With returns a copy of l carrying extra top-level fields.
func (l *Logger) With(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &Logger{zap: l.zap.With(zf...)}
}

func (l *Logger) log(lvl zapcore.Level, message string, fields map[string]any) {
	ce := l.zap.Check(lvl, message)
	if ce == nil {
		return
	}
	if len(fields) == 0 {
		ce.Write()
		return
	}
	ce.Write(zap.Any("fields", fields))
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.log(zapcore.DebugLevel, message, fields)
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.log(zapcore.InfoLevel, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.log(zapcore.WarnLevel, message, fields)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.log(zapcore.ErrorLevel, message, fields)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
