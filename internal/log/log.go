// Package log provides the bus logger, a thin wrapper around logrus.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger for dependency injection.
type Logger struct {
	log *logrus.Logger
}

// New creates a logger writing to stdout. The level comes from LOG_LEVEL
// (trace, debug, info, warn, error) and defaults to info.
func New() *Logger {
	return NewWithOutput(os.Stdout, os.Getenv("LOG_LEVEL"))
}

// NewWithOutput creates a logger writing to w at the given level.
func NewWithOutput(w io.Writer, level string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.SetLevel(parseLevel(level))

	return &Logger{log: l}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return NewWithOutput(io.Discard, "panic")
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel changes the level at runtime. Unknown names fall back to info.
func (l *Logger) SetLevel(level string) {
	l.log.SetLevel(parseLevel(level))
}

// Logrus exposes the underlying logger.
func (l *Logger) Logrus() *logrus.Logger {
	return l.log
}

// Debug logs debug messages
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}

// Info logs informational messages
func (l *Logger) Info(format string, v ...interface{}) {
	l.log.Infof(format, v...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log.Warnf(format, v...)
}

// Error logs error messages
func (l *Logger) Error(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
}

// Fatal logs an error message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.log.Fatalf(format, v...)
}

// WithField returns an entry carrying one structured field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.log.WithField(key, value)
}

// WithFields returns an entry carrying structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.log.WithFields(fields)
}

// ForMessage returns an entry tagged with the message type and id.
func (l *Logger) ForMessage(messageType, id string) *logrus.Entry {
	return l.log.WithFields(logrus.Fields{"type": messageType, "id": id})
}
