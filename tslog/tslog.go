// Package tslog is the slog-based logger of the HTTP side services,
// tinted by default.
package tslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Config selects the handler and level of a [*Logger].
type Config struct {
	// Level is the minimum level of log messages to write.
	Level slog.Level `json:"level" toml:"level"`

	// NoColor disables color in log messages.
	NoColor bool `json:"no_color" toml:"no_color"`

	// NoTime disables timestamps in log messages.
	NoTime bool `json:"no_time" toml:"no_time"`

	// UseJSONHandler writes JSON lines instead of tinted text.
	UseJSONHandler bool `json:"use_json_handler" toml:"use_json_handler"`
}

// NewLogger returns a logger that writes to w.
func (c *Config) NewLogger(w io.Writer) *Logger {
	var h slog.Handler
	if c.UseJSONHandler {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.Level})
	} else {
		h = tint.NewHandler(w, &tint.Options{Level: c.Level, NoColor: c.NoColor})
	}
	return &Logger{level: c.Level, noTime: c.NoTime, handler: h}
}

// NewTestLogger returns a logger that writes through t.Logf.
func (c *Config) NewTestLogger(t interface{ Logf(string, ...any) }) *Logger {
	return c.NewLogger(testingWriter{t})
}

// Logger writes leveled records with [slog.Attr] fields to its handler.
type Logger struct {
	level   slog.Level
	noTime  bool
	handler slog.Handler
}

// Handler returns the logger's handler.
func (l *Logger) Handler() slog.Handler {
	return l.handler
}

// Enabled returns whether logging at the given level is enabled.
func (l *Logger) Enabled(level slog.Level) bool {
	return level >= l.level
}

// Info logs at [slog.LevelInfo].
func (l *Logger) Info(msg string, attrs ...slog.Attr) {
	if l.Enabled(slog.LevelInfo) {
		l.log(slog.LevelInfo, msg, attrs)
	}
}

// Error logs at [slog.LevelError].
func (l *Logger) Error(msg string, attrs ...slog.Attr) {
	if l.Enabled(slog.LevelError) {
		l.log(slog.LevelError, msg, attrs)
	}
}

func (l *Logger) log(level slog.Level, msg string, attrs []slog.Attr) {
	var t time.Time
	if !l.noTime {
		t = time.Now()
	}
	r := slog.NewRecord(t, level, msg, 0)
	r.AddAttrs(attrs...)
	if err := l.handler.Handle(context.Background(), r); err != nil {
		fmt.Fprintf(os.Stderr, "tslog: failed to write log message: %v\n", err)
	}
}

// Err returns a tinted attribute for err.
func Err(err error) slog.Attr {
	return tint.Err(err)
}

type testingWriter struct {
	t interface{ Logf(string, ...any) }
}

func (w testingWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
