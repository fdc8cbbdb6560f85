/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-throttlegate/log"
)

// RecordedEntry is a log entry captured by Recorder.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField returns the first field with the key, including fields added by With.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			f := re.Fields[i]
			return &f, true
		}
	}
	return nil, false
}

// journal is shared by a Recorder and all loggers derived from it.
type journal struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

var logfLevels = map[logf.Level]log.Level{
	logf.LevelDebug: log.LevelDebug,
	logf.LevelInfo:  log.LevelInfo,
	logf.LevelWarn:  log.LevelWarn,
	logf.LevelError: log.LevelError,
}

//nolint:gocritic // logf.EntryWriter signature.
func (j *journal) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	level, ok := logfLevels[e.Level]
	if !ok {
		level = log.LevelInfo
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      level,
		Time:       e.Time,
		Text:       e.Text,
	})
}

func (j *journal) filter(match func(RecordedEntry) bool, limit int) []RecordedEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var res []RecordedEntry
	for _, entry := range j.entries {
		if match(entry) {
			res = append(res, entry)
			if limit > 0 && len(res) == limit {
				break
			}
		}
	}
	return res
}

// Recorder is a log.FieldLogger that keeps every entry in memory for assertions.
// Loggers returned by With and WithLevel write to the same Recorder.
type Recorder struct {
	*log.LogfAdapter
	journal *journal
}

// NewRecorder creates a Recorder that captures all levels.
func NewRecorder() *Recorder {
	j := &journal{}
	return &Recorder{LogfAdapter: &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, j)}, journal: j}
}

// With implements log.FieldLogger.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.With(fs...).(*log.LogfAdapter), journal: r.journal}
}

// WithLevel implements log.FieldLogger.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), journal: r.journal}
}

// Entries returns a copy of all captured entries in the order they were written.
func (r *Recorder) Entries() []RecordedEntry {
	return r.journal.filter(func(RecordedEntry) bool { return true }, 0)
}

// FindEntry returns the first entry with the exact message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntryByFilter returns the first entry matching the filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.journal.filter(filter, 1); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns all entries matching the filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	return r.journal.filter(filter, 0)
}

// Reset drops captured entries.
func (r *Recorder) Reset() {
	r.journal.mu.Lock()
	r.journal.entries = nil
	r.journal.mu.Unlock()
}
