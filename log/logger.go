/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"os"

	"github.com/ssgreg/logf"
)

// CloseFunc flushes buffered entries and stops the background writer.
type CloseFunc logf.ChannelWriterCloseFunc

// LogFunc writes a message at the level it was obtained for.
type LogFunc = logf.LogFunc //nolint:revive

// FieldLogger writes structured log entries.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
	WithLevel(level Level) FieldLogger
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a FieldLogger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{Logger: logf.NewDisabledLogger()}
}

// NewLogger builds a FieldLogger from the configuration.
// Entries are written asynchronously, the returned CloseFunc must be called before exit.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	writer, closeWriter := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(cfg.Level.logfLevel(), writer).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		logger = logger.WithCaller().WithCallerSkip(1) // Skip LogfAdapter frame.
	}
	return &LogfAdapter{Logger: logger}, CloseFunc(closeWriter)
}

// With returns a child logger that adds fs to every entry.
func (a *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{Logger: a.Logger.With(fs...)}
}

// Debug implements FieldLogger.
func (a *LogfAdapter) Debug(msg string, fs ...Field) { a.Logger.Debug(msg, fs...) }

// Info implements FieldLogger.
func (a *LogfAdapter) Info(msg string, fs ...Field) { a.Logger.Info(msg, fs...) }

// Warn implements FieldLogger.
func (a *LogfAdapter) Warn(msg string, fs ...Field) { a.Logger.Warn(msg, fs...) }

// Error implements FieldLogger.
func (a *LogfAdapter) Error(msg string, fs ...Field) { a.Logger.Error(msg, fs...) }

// Debugf implements FieldLogger.
func (a *LogfAdapter) Debugf(format string, args ...interface{}) { a.printf(LevelDebug, format, args) }

// Infof implements FieldLogger.
func (a *LogfAdapter) Infof(format string, args ...interface{}) { a.printf(LevelInfo, format, args) }

// Warnf implements FieldLogger.
func (a *LogfAdapter) Warnf(format string, args ...interface{}) { a.printf(LevelWarn, format, args) }

// Errorf implements FieldLogger.
func (a *LogfAdapter) Errorf(format string, args ...interface{}) { a.printf(LevelError, format, args) }

// printf formats the message only if the level is enabled.
func (a *LogfAdapter) printf(level Level, format string, args []interface{}) {
	a.AtLevel(level, func(write LogFunc) {
		write(fmt.Sprintf(format, args...))
	})
}

// AtLevel calls fn with a LogFunc bound to level if the level is enabled.
func (a *LogfAdapter) AtLevel(level Level, fn func(LogFunc)) {
	a.Logger.AtLevel(level.logfLevel(), fn)
}

// WithLevel returns a child logger that also drops entries below level.
// The level of the parent still applies, so it can only be raised.
func (a *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: a.Logger.WithLevel(level.logfLevel())}
}
