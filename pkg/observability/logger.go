package observability

import (
	"context"
	"time"
)

type SanitizerFunc func(key string, value any) any

type ErrorNotifier interface {
	Notify(ctx context.Context, entry LogEntry) error
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Table     string `json:"table,omitempty"`
}

// StructuredLogger is the logging surface injected into every replication component.
//
// Calls take a message plus optional field maps; scoped loggers derived with With*
// share the parent's sink.
type StructuredLogger interface {
	Debug(message string, fields ...map[string]any)
	Info(message string, fields ...map[string]any)
	Warn(message string, fields ...map[string]any)
	Error(message string, fields ...map[string]any)

	WithField(key string, value any) StructuredLogger
	WithFields(fields map[string]any) StructuredLogger

	// WithRequestID scopes entries to one Lambda invocation.
	WithRequestID(requestID string) StructuredLogger
	// WithTable scopes entries to the source table of a stream batch.
	WithTable(table string) StructuredLogger

	Flush(ctx context.Context) error
	Close() error
}

// LoggerConfig configures logger implementations.
type LoggerConfig struct {
	Format       string        `json:"format"`
	Level        string        `json:"level"`
	RetryDelay   time.Duration `json:"retry_delay"`
	BufferSize   int           `json:"buffer_size"`
	MaxRetries   int           `json:"max_retries"`
	EnableCaller bool          `json:"enable_caller"`
}

// OrNoOp returns logger, or a no-op logger when logger is nil.
func OrNoOp(logger StructuredLogger) StructuredLogger {
	if logger == nil {
		return NewNoOpLogger()
	}
	return logger
}
