// logger.go - Structured logging for the resource machine daemon
package main

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logger writes to the console and an optional log file, and records audit
// events to a separate file.
type Logger struct {
	zerolog.Logger
	audit *zerolog.Logger
	files []*os.File
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

// NewLogger creates a new logger instance. Empty paths disable the file and audit
// outputs.
func NewLogger(level, logFile, auditFile string, console io.Writer) (*Logger, error) {
	l := &Logger{}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	if logFile != "" {
		f, err := openAppend(logFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		l.files = append(l.files, f)
		writers = append(writers, f)
	}
	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(level)).
		With().Timestamp().Logger()

	if auditFile != "" {
		f, err := openAppend(auditFile)
		if err != nil {
			l.Close()
			return nil, errors.Wrap(err, "failed to open audit file")
		}
		l.files = append(l.files, f)
		audit := zerolog.New(f).With().Timestamp().Bool("audit", true).Logger()
		l.audit = &audit
	}
	return l, nil
}

// Close closes the logger and its files
func (l *Logger) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// Audit logs an audit event
func (l *Logger) Audit(event string, details map[string]interface{}) {
	l.Info().Str("event", event).Fields(details).Msg("audit")
	if l.audit != nil {
		l.audit.Log().Str("event", event).Fields(details).Send()
	}
}
