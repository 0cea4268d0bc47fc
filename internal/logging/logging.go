// Package logging is a small structured logger over logrus. Call sites pass
// fields as options so that the backend can change without touching them.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Option adds structured fields to a single log line.
type Option func(logrus.Fields)

func WithField(key string, value interface{}) Option {
	return func(f logrus.Fields) {
		f[key] = value
	}
}

func WithFields(fields map[string]interface{}) Option {
	return func(f logrus.Fields) {
		for k, v := range fields {
			f[k] = v
		}
	}
}

type Logger struct {
	entry *logrus.Entry
}

// New returns a text logger writing to stderr. Stdout stays free for the
// MCP stdio transport.
func New(level Level) *Logger {
	return NewWithWriter(level, os.Stderr, "text")
}

// NewWithWriter builds a logger with an explicit sink and format ("json" or "text").
func NewWithWriter(level Level, w io.Writer, format string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.logrusLevel())
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a child logger that carries the given fields on every line.
func (l *Logger) With(opts ...Option) *Logger {
	return &Logger{entry: l.entry.WithFields(collect(opts))}
}

// Entry exposes the underlying logrus entry.
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

func (l *Logger) Debug(msg string, opts ...Option) {
	l.entry.WithFields(collect(opts)).Debug(msg)
}

func (l *Logger) Info(msg string, opts ...Option) {
	l.entry.WithFields(collect(opts)).Info(msg)
}

func (l *Logger) Warn(msg string, opts ...Option) {
	l.entry.WithFields(collect(opts)).Warn(msg)
}

func (l *Logger) Error(msg string, opts ...Option) {
	l.entry.WithFields(collect(opts)).Error(msg)
}

func collect(opts []Option) logrus.Fields {
	fields := logrus.Fields{}
	for _, opt := range opts {
		opt(fields)
	}
	return fields
}
