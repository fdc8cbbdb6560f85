/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlegate/log"
)

func TestRecorder(t *testing.T) {
	logRecorder := NewRecorder()
	logRecorder.Warn("request rejected", log.String("rate_limit_key", "10.0.0.1"), log.Int("status", 429))
	logRecorder.Info("response completed")

	require.Len(t, logRecorder.Entries(), 2)

	_, found := logRecorder.FindEntry("unknown")
	require.False(t, found)

	logEntry, found := logRecorder.FindEntry("request rejected")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)

	keyField, found := logEntry.FindField("rate_limit_key")
	require.True(t, found)
	require.Equal(t, "10.0.0.1", string(keyField.Bytes))

	statusField, found := logEntry.FindField("status")
	require.True(t, found)
	require.Equal(t, 429, int(statusField.Int))

	_, found = logEntry.FindField("unknown")
	require.False(t, found)

	infos := logRecorder.FindAllEntriesByFilter(func(entry RecordedEntry) bool {
		return entry.Level == log.LevelInfo
	})
	require.Len(t, infos, 1)

	logRecorder.Reset()
	require.Empty(t, logRecorder.Entries())
}

func TestRecorderWith(t *testing.T) {
	logRecorder := NewRecorder()
	child := logRecorder.With(log.String("request_id", "abc"))
	child.WithLevel(log.LevelError).Info("skipped")
	child.Error("panic recovered")

	entries := logRecorder.Entries()
	require.Len(t, entries, 1)
	idField, found := entries[0].FindField("request_id")
	require.True(t, found)
	require.Equal(t, "abc", string(idField.Bytes))
}
