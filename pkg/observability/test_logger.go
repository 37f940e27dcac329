package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theory-cloud/searchreplicator/pkg/sanitization"
)

type testLoggerCore struct {
	mu      sync.Mutex
	entries []LogEntry

	flushCount atomic.Int64
}

// TestLogger keeps entries in memory so tests can assert on diagnostics without
// capturing process output.
//
// Derived loggers (via With* calls) share the same underlying core.
type TestLogger struct {
	core *testLoggerCore

	fields    map[string]any
	requestID string
	table     string

	closed atomic.Bool
}

var _ StructuredLogger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return &TestLogger{
		core:   &testLoggerCore{},
		fields: map[string]any{},
	}
}

// Entries returns a copy of everything logged so far.
func (l *TestLogger) Entries() []LogEntry {
	if l == nil || l.core == nil {
		return nil
	}
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	out := make([]LogEntry, len(l.core.entries))
	copy(out, l.core.entries)
	return out
}

// EntriesWithMessage returns the entries whose message equals message.
func (l *TestLogger) EntriesWithMessage(message string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Message == message {
			out = append(out, e)
		}
	}
	return out
}

// EntriesAtLevel returns the entries logged at level.
func (l *TestLogger) EntriesAtLevel(level string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// FlushCount reports how many times Flush succeeded.
func (l *TestLogger) FlushCount() int64 {
	if l == nil || l.core == nil {
		return 0
	}
	return l.core.flushCount.Load()
}

func (l *TestLogger) Debug(message string, fields ...map[string]any) {
	l.log("debug", message, fields...)
}
func (l *TestLogger) Info(message string, fields ...map[string]any) {
	l.log("info", message, fields...)
}
func (l *TestLogger) Warn(message string, fields ...map[string]any) {
	l.log("warn", message, fields...)
}
func (l *TestLogger) Error(message string, fields ...map[string]any) {
	l.log("error", message, fields...)
}

func (l *TestLogger) WithField(key string, value any) StructuredLogger {
	return l.WithFields(map[string]any{key: value})
}

func (l *TestLogger) WithFields(fields map[string]any) StructuredLogger {
	next := l.clone()
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

func (l *TestLogger) WithRequestID(requestID string) StructuredLogger {
	next := l.clone()
	next.requestID = requestID
	return next
}

func (l *TestLogger) WithTable(table string) StructuredLogger {
	next := l.clone()
	next.table = table
	return next
}

func (l *TestLogger) Flush(ctx context.Context) error {
	if l == nil || l.core == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	l.core.flushCount.Add(1)
	return nil
}

func (l *TestLogger) Close() error {
	if l == nil {
		return nil
	}
	l.closed.Store(true)
	return nil
}

func (l *TestLogger) clone() *TestLogger {
	if l == nil {
		return NewTestLogger()
	}
	nextFields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		nextFields[k] = v
	}
	return &TestLogger{
		core:      l.core,
		fields:    nextFields,
		requestID: l.requestID,
		table:     l.table,
	}
}

func (l *TestLogger) log(level string, message string, fields ...map[string]any) {
	if l == nil || l.core == nil || l.closed.Load() {
		return
	}

	sanitized := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		sanitized[k] = sanitization.SanitizeFieldValue(k, v)
	}
	for _, set := range fields {
		for k, v := range set {
			sanitized[k] = sanitization.SanitizeFieldValue(k, v)
		}
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   sanitization.SanitizeLogString(message),
		Fields:    sanitized,
		RequestID: l.requestID,
		Table:     l.table,
	}

	l.core.mu.Lock()
	l.core.entries = append(l.core.entries, entry)
	l.core.mu.Unlock()
}
