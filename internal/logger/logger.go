// Package logger is a small levelled wrapper around the standard logger.
// Output goes to stderr by default so it never mixes with preprocessed
// text on stdout.
package logger

import (
	"io"
	"log"
	"os"
)

type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelDebug
	LevelTrace
)

type Logger struct {
	*log.Logger
	level     LogLevel
	isVerbose bool
}

type Option func(*Logger)

func WithOutput(w io.Writer) Option {
	return func(l *Logger) {
		l.Logger = log.New(w, l.Logger.Prefix(), l.Logger.Flags())
	}
}

func WithPrefix(prefix string) Option {
	return func(l *Logger) {
		l.Logger = log.New(l.Logger.Writer(), prefix, l.Logger.Flags())
	}
}

func WithFlags(flags int) Option {
	return func(l *Logger) {
		l.Logger = log.New(l.Logger.Writer(), l.Logger.Prefix(), flags)
	}
}

func New(options ...Option) *Logger {
	l := &Logger{
		Logger: log.New(os.Stderr, "", log.LstdFlags),
		level:  LevelInfo,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(WithOutput(io.Discard))
}

// SetVerbose enables Debug output.
func (l *Logger) SetVerbose(verbose bool) {
	l.isVerbose = verbose
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

func (l *Logger) Info(format string, args ...any) {
	l.printf("INFO: ", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.printf("WARN: ", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if l.isVerbose || l.level >= LevelDebug {
		l.printf("DEBUG: ", format, args...)
	}
}

func (l *Logger) Trace(format string, args ...any) {
	if l.level >= LevelTrace {
		l.printf("TRACE: ", format, args...)
	}
}

func (l *Logger) printf(prefix, format string, args ...any) {
	l.Logger.Printf(prefix+format, args...)
}
