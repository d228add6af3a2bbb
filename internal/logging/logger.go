// Package logging provides structured logging for the CLI and the engine.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/svetzal/r64u-sub000/internal/events"
)

// Logger wraps zerolog and optionally mirrors warnings and errors onto the
// event bus so a UI can surface them without tailing stderr.
type Logger struct {
	zlog     zerolog.Logger
	eventBus *events.EventBus
	output   io.Writer
}

// NewLogger creates a logger writing human-readable output to w.
// The event bus may be nil.
func NewLogger(w io.Writer, eventBus *events.EventBus) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	return &Logger{
		zlog:     logger,
		eventBus: eventBus,
		output:   output,
	}
}

// NewDefaultLogger creates a logger writing to stderr with no event bus.
// Stdout stays reserved for command output and progress bars.
func NewDefaultLogger() *Logger {
	return NewLogger(os.Stderr, nil)
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Fatal returns a fatal level event.
func (l *Logger) Fatal() *zerolog.Event {
	return l.zlog.Fatal()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting and mirrors it
// onto the event bus when one is attached.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
	if l.eventBus != nil {
		l.eventBus.PublishLog(events.WarnLevel, fmt.Sprintf(format, args...), nil)
	}
}

// Errorf logs an error message with printf-style formatting and mirrors it
// onto the event bus when one is attached.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
	if l.eventBus != nil {
		l.eventBus.PublishLog(events.ErrorLevel, fmt.Sprintf(format, args...), nil)
	}
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	// Default to info; --verbose lowers this to debug.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
