package logger

import (
	"io"
	"log"
	"os"
)

// Logger wraps standard log with debug flag
type Logger struct {
	debug bool
	*log.Logger
}

// New creates a new logger writing to stderr
func New(debug bool) *Logger {
	return NewWithWriter(debug, os.Stderr)
}

// NewWithWriter creates a new logger writing to w
func NewWithWriter(debug bool, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{
		debug:  debug,
		Logger: log.New(w, "", log.LstdFlags),
	}
}

// Discard returns a logger that drops everything, handy for tests
func Discard() *Logger {
	return NewWithWriter(false, io.Discard)
}

// Debug reports whether debug logging is enabled
func (l *Logger) Debug() bool {
	return l.debug
}

// Debugf logs if debug is enabled
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.Logger.Printf("DEBUG "+format, v...)
	}
}

// Warnf always logs
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.Logger.Printf("WARN "+format, v...)
}

// Errorf always logs
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.Logger.Printf("ERROR "+format, v...)
}
