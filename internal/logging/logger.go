package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"snakeroyale/server/internal/config"
)

// ServiceName tags every record emitted by a configured logger.
const ServiceName = "arena"

var (
	globalMu     sync.RWMutex
	globalLogger = newNopLogger()
)

// Level orders log verbosity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

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
	case FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

// ParseLevel maps the textual level used in ARENA_LOG_LEVEL onto a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
}

// Field is one structured attribute.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Strings(key string, values []string) Field { return Field{Key: key, Value: values} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }
func Float(key string, value float64) Field { return Field{Key: key, Value: value} }
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Duration records d in milliseconds so dashboards can aggregate it numerically.
func Duration(key string, d time.Duration) Field {
	return Field{Key: key + "_ms", Value: float64(d) / float64(time.Millisecond)}
}

// Error records the error message; a nil error is logged as an empty string.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger emits one JSON object per line.
type Logger struct {
	mu     *sync.Mutex
	level  Level
	writer syncWriter
	fields map[string]any
	exit   func(int)
}

type syncWriter interface {
	io.Writer
	Sync() error
}

type fanout []syncWriter

func (f fanout) Write(p []byte) (int, error) {
	for _, w := range f {
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (f fanout) Sync() error {
	var first error
	for _, w := range f {
		if err := w.Sync(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New builds the process logger: stdout always, plus a rotating file when a path is configured.
// The result is installed as the global fallback.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	writers := fanout{os.Stdout}
	if path := strings.TrimSpace(cfg.Path); path != "" {
		file, err := newRotatingWriter(cfg)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}
	logger := newLogger(level, writers)
	logger.fields["service"] = ServiceName
	ReplaceGlobals(logger)
	return logger, nil
}

// NewWriterLogger writes records at or above level to w. It does not touch the globals.
func NewWriterLogger(w io.Writer, level Level) *Logger {
	return newLogger(level, plainWriter{w})
}

// NewTestLogger discards everything.
func NewTestLogger() *Logger {
	return newNopLogger()
}

func newNopLogger() *Logger {
	return newLogger(DebugLevel, plainWriter{io.Discard})
}

func newLogger(level Level, w syncWriter) *Logger {
	return &Logger{
		mu:     &sync.Mutex{},
		level:  level,
		writer: w,
		fields: map[string]any{},
		exit:   os.Exit,
	}
}

// ReplaceGlobals swaps the fallback logger returned by L.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With derives a logger carrying extra fields. Derived loggers share the writer lock.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	clone := &Logger{
		mu:     l.mu,
		level:  l.level,
		writer: l.writer,
		fields: make(map[string]any, len(l.fields)+len(fields)),
		exit:   l.exit,
	}
	for k, v := range l.fields {
		clone.fields[k] = v
	}
	for _, field := range fields {
		clone.fields[field.Key] = field.Value
	}
	return clone
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return L().Enabled(level)
	}
	return level >= l.level
}

// Sync flushes the underlying writers.
func (l *Logger) Sync() error {
	if l == nil || l.writer == nil {
		return nil
	}
	return l.writer.Sync()
}

func (l *Logger) Debug(message string, fields ...Field) { l.log(DebugLevel, message, fields...) }
func (l *Logger) Info(message string, fields ...Field) { l.log(InfoLevel, message, fields...) }
func (l *Logger) Warn(message string, fields ...Field) { l.log(WarnLevel, message, fields...) }
func (l *Logger) Error(message string, fields ...Field) { l.log(ErrorLevel, message, fields...) }

// Fatal logs, flushes and exits with status 1.
func (l *Logger) Fatal(message string, fields ...Field) { l.log(FatalLevel, message, fields...) }

func (l *Logger) log(level Level, message string, fields ...Field) {
	if l == nil {
		L().log(level, message, fields...)
		return
	}
	if level < l.level {
		return
	}
	record := make(map[string]any, len(l.fields)+len(fields)+3)
	for k, v := range l.fields {
		record[k] = v
	}
	for _, field := range fields {
		record[field.Key] = field.Value
	}
	//1.- Reserved keys win over caller supplied fields.
	record["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["level"] = level.String()
	record["message"] = message
	data, err := json.Marshal(record)
	if err != nil {
		data, _ = json.Marshal(map[string]any{
			"level":   level.String(),
			"message": message,
			"error":   "unencodable log fields: " + err.Error(),
		})
	}
	l.mu.Lock()
	_, _ = l.writer.Write(append(data, '\n'))
	if level == FatalLevel {
		_ = l.writer.Sync()
	}
	l.mu.Unlock()
	if level == FatalLevel {
		l.exit(1)
	}
}

type plainWriter struct{ io.Writer }

func (plainWriter) Sync() error { return nil }
