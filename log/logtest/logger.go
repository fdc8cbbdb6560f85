/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-throttlegate/log"
)

// LoggerOpts configures NewLoggerWithOpts.
type LoggerOpts struct {
	// Output receives JSON lines, os.Stderr by default.
	Output io.Writer
	// Level is the minimal level written, log.LevelDebug by default.
	Level log.Level
}

// syncWriter encodes entries synchronously, so the output is complete when a test ends.
type syncWriter struct {
	mu      sync.Mutex
	encoder logf.Encoder
	out     io.Writer
}

//nolint:gocritic // logf.EntryWriter signature.
func (w *syncWriter) WriteEntry(e logf.Entry) {
	var buf logf.Buffer
	data := []byte("failed to encode log entry\n")
	if err := w.encoder.Encode(&buf, e); err == nil {
		data = buf.Data
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.out.Write(data)
}

// NewLogger returns a debug-level JSON logger writing to stderr.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{})
}

// NewLoggerWithOpts returns a synchronous JSON logger for tests.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	w := &syncWriter{
		encoder: logf.NewJSONEncoder(logf.JSONEncoderConfig{FieldKeyTime: "time", EncodeTime: logf.RFC3339NanoTimeEncoder}),
		out:     opts.Output,
	}
	var logger log.FieldLogger = &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}
	if opts.Level != "" {
		logger = logger.WithLevel(opts.Level)
	}
	return logger
}
