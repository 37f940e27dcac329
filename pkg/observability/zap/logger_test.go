package zap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
)

type fakeNotifier struct {
	mu      sync.Mutex
	entries []observability.LogEntry
	failN   int
}

func (f *fakeNotifier) Notify(_ context.Context, entry observability.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("notify failed")
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeNotifier) Entries() []observability.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]observability.LogEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

func TestZapLogger_SanitizesMessageAndFields(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	base := ubzap.New(core)

	logger, err := NewZapLogger(observability.LoggerConfig{}, WithZapLogger(base))
	if err != nil {
		t.Fatalf("NewZapLogger: %v", err)
	}

	logger.Info("hello\r\nworld", map[string]any{
		"authorization": "Bearer secret",
		"id":            "doc\r\n",
		"status":        400,
	})

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "helloworld" {
		t.Fatalf("expected sanitized message, got %q", entries[0].Message)
	}
	ctx := entries[0].ContextMap()
	if ctx["authorization"] != "[REDACTED]" {
		t.Fatalf("expected authorization redacted, got %#v", ctx["authorization"])
	}
	if ctx["id"] != "doc" {
		t.Fatalf("expected id sanitized, got %#v", ctx["id"])
	}
	if ctx["status"] != int64(400) {
		t.Fatalf("expected numeric status, got %#v", ctx["status"])
	}
}

func TestZapLogger_ScopedFieldsAppearOnEntries(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger, err := NewZapLogger(observability.LoggerConfig{}, WithZapLogger(ubzap.New(core)))
	if err != nil {
		t.Fatalf("NewZapLogger: %v", err)
	}

	scoped := logger.WithRequestID("req-1").WithTable("Orders").WithField("index", "orders")
	scoped.Warn("write failed")
	logger.Debug("unscoped")

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["request_id"] != "req-1" || ctx["table"] != "Orders" || ctx["index"] != "orders" {
		t.Fatalf("unexpected scoped context: %#v", ctx)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %v", entries[0].Level)
	}
	if len(entries[1].ContextMap()) != 0 {
		t.Fatalf("expected parent logger to stay unscoped, got %#v", entries[1].ContextMap())
	}
}

func TestZapLogger_NotifierIncludesScopedFields(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	base := ubzap.New(core)

	notifier := &fakeNotifier{}
	logger, err := NewZapLogger(
		observability.LoggerConfig{BufferSize: 4, MaxRetries: 1, RetryDelay: time.Millisecond},
		WithZapLogger(base),
		WithErrorNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("NewZapLogger: %v", err)
	}

	scoped := logger.WithFields(map[string]any{"api_key": "secret"}).WithRequestID("req-1").WithTable("Orders")
	scoped.Info("not forwarded")
	scoped.Error("boom", map[string]any{"id": "doc-1"})

	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := notifier.Entries()
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].Message != "boom" || got[0].RequestID != "req-1" || got[0].Table != "Orders" {
		t.Fatalf("unexpected notification: %#v", got[0])
	}
	if got[0].Fields["api_key"] != "[REDACTED]" || got[0].Fields["id"] != "doc-1" {
		t.Fatalf("unexpected notification fields: %#v", got[0].Fields)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestZapLogger_NotifierRetriesThenSucceeds(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	notifier := &fakeNotifier{failN: 2}
	logger, err := NewZapLogger(
		observability.LoggerConfig{BufferSize: 1, MaxRetries: 3, RetryDelay: time.Millisecond},
		WithZapLogger(ubzap.New(core)),
		WithErrorNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("NewZapLogger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Error("boom")
	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(notifier.Entries()) != 1 {
		t.Fatalf("expected notification after retries, got %d", len(notifier.Entries()))
	}
}

func TestZapLogger_ClosedLoggerDropsEntries(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger, err := NewZapLogger(observability.LoggerConfig{}, WithZapLogger(ubzap.New(core)), WithErrorNotifier(&fakeNotifier{}))
	if err != nil {
		t.Fatalf("NewZapLogger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	logger.Error("after close")

	if observed.Len() != 0 {
		t.Fatalf("expected no entries after close, got %d", observed.Len())
	}
}

func TestNewZapLogger_RejectsUnknownLevelAndFormat(t *testing.T) {
	if _, err := NewZapLogger(observability.LoggerConfig{Level: "verbose", Format: "json"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := NewZapLogger(observability.LoggerConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNormalizeLoggerConfig_DefaultsToJSONInLambda(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "replicator")

	cfg := normalizeLoggerConfig(observability.LoggerConfig{})
	if cfg.Format != "json" || cfg.Level != "info" {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.MaxRetries != 3 || cfg.BufferSize != 256 || cfg.RetryDelay != time.Second {
		t.Fatalf("unexpected retry defaults: %#v", cfg)
	}
}

func TestIgnoreSyncOnTerminal(t *testing.T) {
	if ignoreSyncOnTerminal(errors.New("sync /dev/stdout: invalid argument")) != nil {
		t.Fatal("expected EINVAL to be ignored")
	}
	if ignoreSyncOnTerminal(errors.New("disk full")) == nil {
		t.Fatal("expected other errors to surface")
	}
}
