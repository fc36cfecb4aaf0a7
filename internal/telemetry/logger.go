package telemetry

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
)

// Logger writes one JSON object per line. A nil *Logger discards everything.
type Logger struct {
	l *log.Logger
	c io.Closer
}

func NewLogger(path string, debug bool) (*Logger, error) {
	if path == "" {
		return newLogger(io.Discard, nil, debug), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return newLogger(f, f, debug), nil
}

// NewWriterLogger logs to w without taking ownership of it.
func NewWriterLogger(w io.Writer, debug bool) *Logger {
	return newLogger(w, nil, debug)
}

func newLogger(w io.Writer, c io.Closer, debug bool) *Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	l := log.NewWithOptions(w, log.Options{
		Formatter:       log.JSONFormatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
		TimeFunction:    func(t time.Time) time.Time { return t.UTC() },
		Level:           level,
	})
	return &Logger{l: l, c: c}
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Debug(msg, keyvals(fields)...)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Info(msg, keyvals(fields)...)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Warn(msg, keyvals(fields)...)
}

func (l *Logger) Error(msg string, fields map[string]any) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Error(msg, keyvals(fields)...)
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	if l == nil || l.l == nil {
		return l
	}
	return &Logger{l: l.l.With(keyvals(fields)...)}
}

func (l *Logger) Close() error {
	if l == nil || l.c == nil {
		return nil
	}
	return l.c.Close()
}

func keyvals(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		v := fields[k]
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		out = append(out, k, v)
	}
	return out
}
