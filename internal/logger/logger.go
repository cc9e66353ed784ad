package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a logging level
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelNone disables all logging
	LevelNone
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level. Unknown names
// yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Sink is the logging surface the protocol packages depend on.
// *Logger implements it; so do Nop and Func.
type Sink interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// output is shared by a logger and every child created with WithPrefix.
type output struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	level  atomic.Int32
	now    func() time.Time
}

// Logger writes leveled, prefixed lines to a file or writer.
type Logger struct {
	out    *output
	prefix string
}

// New creates a Logger appending to logPath. An empty path or LevelNone
// discards everything; "-" writes to stderr.
func New(level Level, logPath string, prefix string) (*Logger, error) {
	switch {
	case level == LevelNone || logPath == "":
		return NewWriter(LevelNone, io.Discard, prefix), nil
	case logPath == "-":
		return NewWriter(level, os.Stderr, prefix), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := NewWriter(level, file, prefix)
	l.out.closer = file
	return l, nil
}

// NewWriter creates a Logger that writes to w.
func NewWriter(level Level, w io.Writer, prefix string) *Logger {
	out := &output{w: w, now: time.Now}
	out.level.Store(int32(level))
	return &Logger{out: out, prefix: prefix}
}

// WithPrefix returns a child logger. Parent and child share the writer and
// the level.
func (l *Logger) WithPrefix(prefix string) *Logger {
	if l.prefix != "" {
		prefix = l.prefix + ":" + prefix
	}
	return &Logger{out: l.out, prefix: prefix}
}

// SetLevel changes the level for this logger and all of its relatives.
func (l *Logger) SetLevel(level Level) {
	l.out.level.Store(int32(level))
}

func (l *Logger) GetLevel() Level {
	return Level(l.out.level.Load())
}

func (l *Logger) Enabled(level Level) bool {
	current := l.GetLevel()
	return current != LevelNone && level >= current
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	var b strings.Builder
	b.WriteString(l.out.now().Format(timeLayout))
	b.WriteByte(' ')
	b.WriteString(level.String())
	b.WriteByte(' ')
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, format, args...)
	b.WriteByte('\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.w != nil {
		_, _ = io.WriteString(l.out.w, b.String())
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Close releases the log file, if any. Later writes are dropped.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	l.out.w = nil
	if l.out.closer == nil {
		return nil
	}
	err := l.out.closer.Close()
	l.out.closer = nil
	return err
}

type nopSink struct{}

func (nopSink) Debug(string, ...interface{}) {}
func (nopSink) Info(string, ...interface{})  {}
func (nopSink) Warn(string, ...interface{})  {}
func (nopSink) Error(string, ...interface{}) {}

// Nop returns a Sink that discards everything.
func Nop() Sink {
	return nopSink{}
}

// Func adapts a single callback into a Sink. The callback receives the
// level and the already formatted message.
type Func func(level Level, msg string)

func (f Func) Debug(format string, args ...interface{}) { f(LevelDebug, fmt.Sprintf(format, args...)) }
func (f Func) Info(format string, args ...interface{})  { f(LevelInfo, fmt.Sprintf(format, args...)) }
func (f Func) Warn(format string, args ...interface{})  { f(LevelWarn, fmt.Sprintf(format, args...)) }
func (f Func) Error(format string, args ...interface{}) { f(LevelError, fmt.Sprintf(format, args...)) }
