package logger

import (
	"fmt"
	"maps"
	"sync"
)

// TestLogger records entries in memory so tests can assert on what was logged.
type TestLogger struct {
	store  *testStore
	fields Fields
}

type testStore struct {
	mu      sync.RWMutex
	entries []TestEntry
}

type TestEntry struct {
	Level   string
	Message string
	Fields  Fields
}

func NewTestLogger() *TestLogger {
	return &TestLogger{store: &testStore{}, fields: Fields{}}
}

func (l *TestLogger) add(level string, args []any) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	fields := make(Fields, len(l.fields))
	maps.Copy(fields, l.fields)
	l.store.entries = append(l.store.entries, TestEntry{
		Level:   level,
		Message: fmt.Sprint(args...),
		Fields:  fields,
	})
}

func (l *TestLogger) Debug(args ...any) { l.add("debug", args) }
func (l *TestLogger) Info(args ...any)  { l.add("info", args) }
func (l *TestLogger) Warn(args ...any)  { l.add("warn", args) }
func (l *TestLogger) Error(args ...any) { l.add("error", args) }
func (l *TestLogger) Fatal(args ...any) { l.add("fatal", args) }

func (l *TestLogger) WithFields(fields Fields) Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	maps.Copy(merged, l.fields)
	maps.Copy(merged, fields)
	return &TestLogger{store: l.store, fields: merged}
}

func (l *TestLogger) WithField(key string, value any) Logger {
	return l.WithFields(Fields{key: value})
}

func (l *TestLogger) WithError(err error) Logger {
	return l.WithFields(Fields{"error": err})
}

func (l *TestLogger) Entries() []TestEntry {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return append([]TestEntry(nil), l.store.entries...)
}

func (l *TestLogger) HasEntry(level, message string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}

// Count returns the number of entries recorded at the given level.
func (l *TestLogger) Count(level string) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
