package zap

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
	"github.com/theory-cloud/searchreplicator/pkg/sanitization"
)

const (
	levelDebug = "debug"
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"
)

type Option func(*loggerOptions)

type loggerOptions struct {
	initErr error

	zapLogger *ubzap.Logger
	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier
}

func WithZapLogger(logger *ubzap.Logger) Option {
	return func(opts *loggerOptions) {
		opts.zapLogger = logger
	}
}

func WithSanitizer(fn observability.SanitizerFunc) Option {
	return func(opts *loggerOptions) {
		opts.sanitizer = fn
	}
}

func WithErrorNotifier(notifier observability.ErrorNotifier) Option {
	return func(opts *loggerOptions) {
		opts.notifier = notifier
	}
}

type zapCore struct {
	logger *ubzap.Logger

	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier

	retryDelay time.Duration
	maxRetries int

	notifyMu sync.Mutex
	notifyCh chan observability.LogEntry
	notifyWg sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool

	dropped atomic.Int64
}

// Logger is the zap-backed StructuredLogger used in Lambda.
type Logger struct {
	core *zapCore
	log  *ubzap.Logger

	fields    map[string]any
	requestID string
	table     string
}

var _ observability.StructuredLogger = (*Logger)(nil)

func NewZapLogger(config observability.LoggerConfig, options ...Option) (*Logger, error) {
	cfg := normalizeLoggerConfig(config)

	opts := &loggerOptions{
		sanitizer: sanitization.SanitizeFieldValue,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(opts)
	}
	if opts.initErr != nil {
		return nil, opts.initErr
	}

	base := opts.zapLogger
	if base == nil {
		level, err := parseZapLevel(cfg.Level)
		if err != nil {
			return nil, err
		}

		enc := zapEncoderConfig(cfg.EnableCaller)
		var encoder zapcore.Encoder
		switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
		case "console":
			encoder = zapcore.NewConsoleEncoder(enc)
		case "json":
			encoder = zapcore.NewJSONEncoder(enc)
		default:
			return nil, errors.New("observability/zap: unsupported log format")
		}

		base = ubzap.New(zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
		if cfg.EnableCaller {
			base = base.WithOptions(ubzap.AddCaller())
		}
	}

	zcore := &zapCore{
		logger:     base,
		sanitizer:  opts.sanitizer,
		notifier:   opts.notifier,
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
	}
	if zcore.notifier != nil {
		zcore.notifyCh = make(chan observability.LogEntry, cfg.BufferSize)
		go zcore.runNotifier()
	}

	return &Logger{
		core:   zcore,
		log:    base,
		fields: map[string]any{},
	}, nil
}

func normalizeLoggerConfig(config observability.LoggerConfig) observability.LoggerConfig {
	cfg := config

	if strings.TrimSpace(cfg.Format) == "" {
		if isLambdaEnv() {
			cfg.Format = "json"
		} else {
			cfg.Format = "console"
		}
	}
	if strings.TrimSpace(cfg.Level) == "" {
		cfg.Level = levelInfo
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return cfg
}

func isLambdaEnv() bool {
	for _, key := range []string{"AWS_LAMBDA_FUNCTION_NAME", "AWS_LAMBDA_RUNTIME_API", "LAMBDA_TASK_ROOT"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func parseZapLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case levelDebug:
		return zapcore.DebugLevel, nil
	case levelInfo, "":
		return zapcore.InfoLevel, nil
	case levelWarn, "warning":
		return zapcore.WarnLevel, nil
	case levelError:
		return zapcore.ErrorLevel, nil
	default:
		return 0, errors.New("observability/zap: unsupported log level")
	}
}

func zapEncoderConfig(enableCaller bool) zapcore.EncoderConfig {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if enableCaller {
		enc.CallerKey = "caller"
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return enc
}

func (l *Logger) Debug(message string, fields ...map[string]any) {
	l.logEntry(levelDebug, message, fields...)
}
func (l *Logger) Info(message string, fields ...map[string]any) {
	l.logEntry(levelInfo, message, fields...)
}
func (l *Logger) Warn(message string, fields ...map[string]any) {
	l.logEntry(levelWarn, message, fields...)
}
func (l *Logger) Error(message string, fields ...map[string]any) {
	l.logEntry(levelError, message, fields...)
}

func (l *Logger) WithField(key string, value any) observability.StructuredLogger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) observability.StructuredLogger {
	next := l.clone()
	for k, v := range fields {
		next.fields[k] = v
	}
	next.log = next.log.With(l.core.zapFields(fields)...)
	return next
}

func (l *Logger) WithRequestID(requestID string) observability.StructuredLogger {
	next := l.clone()
	next.requestID = requestID
	next.log = next.log.With(ubzap.String("request_id", sanitization.SanitizeLogString(requestID)))
	return next
}

func (l *Logger) WithTable(table string) observability.StructuredLogger {
	next := l.clone()
	next.table = table
	next.log = next.log.With(ubzap.String("table", sanitization.SanitizeLogString(table)))
	return next
}

// Flush syncs zap and waits (bounded by ctx) for queued error notifications.
func (l *Logger) Flush(ctx context.Context) error {
	if l == nil || l.core == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := l.core.logger.Sync()
	l.core.waitNotifier(ctx)
	return ignoreSyncOnTerminal(err)
}

func (l *Logger) Close() error {
	if l == nil || l.core == nil {
		return nil
	}
	return l.core.close()
}

// Dropped reports error notifications discarded because the queue was full or closed.
func (l *Logger) Dropped() int64 {
	if l == nil || l.core == nil {
		return 0
	}
	return l.core.dropped.Load()
}

func (l *Logger) clone() *Logger {
	nextFields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		nextFields[k] = v
	}
	return &Logger{
		core:      l.core,
		log:       l.log,
		fields:    nextFields,
		requestID: l.requestID,
		table:     l.table,
	}
}

func (l *Logger) logEntry(level string, message string, fields ...map[string]any) {
	if l == nil || l.core == nil || l.log == nil || l.core.closed.Load() {
		return
	}

	message = sanitization.SanitizeLogString(message)
	callFields := mergeFields(fields...)

	zf := l.core.zapFields(callFields)
	switch level {
	case levelDebug:
		l.log.Debug(message, zf...)
	case levelWarn:
		l.log.Warn(message, zf...)
	case levelError:
		l.log.Error(message, zf...)
	default:
		l.log.Info(message, zf...)
	}

	if level == levelError && l.core.notifier != nil {
		l.core.enqueueNotification(observability.LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
			Fields:    l.core.sanitize(mergeFields(l.fields, callFields)),
			RequestID: l.requestID,
			Table:     l.table,
		})
	}
}

func mergeFields(sets ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

func (c *zapCore) sanitize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = c.sanitizer(k, v)
	}
	return out
}

func (c *zapCore) zapFields(fields map[string]any) []ubzap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]ubzap.Field, 0, len(fields))
	for k, v := range c.sanitize(fields) {
		out = append(out, ubzap.Any(k, v))
	}
	return out
}

func (c *zapCore) enqueueNotification(entry observability.LogEntry) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if c.closed.Load() || c.notifyCh == nil {
		c.dropped.Add(1)
		return
	}

	c.notifyWg.Add(1)
	select {
	case c.notifyCh <- entry:
	default:
		c.notifyWg.Done()
		c.dropped.Add(1)
	}
}

func (c *zapCore) runNotifier() {
	for entry := range c.notifyCh {
		if err := c.notifyWithRetries(entry); err != nil {
			c.logger.Warn("error notification failed", ubzap.String("error", sanitization.SanitizeLogString(err.Error())))
		}
		c.notifyWg.Done()
	}
}

func (c *zapCore) notifyWithRetries(entry observability.LogEntry) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.notifier.Notify(context.Background(), entry); err != nil {
			lastErr = err
			if attempt < c.maxRetries-1 {
				time.Sleep(c.retryDelay)
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (c *zapCore) waitNotifier(ctx context.Context) {
	if c.notifier == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		c.notifyWg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func (c *zapCore) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.notifyMu.Lock()
		c.closed.Store(true)
		if c.notifyCh != nil {
			close(c.notifyCh)
			c.notifyCh = nil
		}
		c.notifyMu.Unlock()

		c.notifyWg.Wait()
		err = ignoreSyncOnTerminal(c.logger.Sync())
	})
	return err
}

// Syncing stdout fails with EINVAL/ENOTTY when it is a pipe or terminal, which is
// the normal case inside Lambda.
func ignoreSyncOnTerminal(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl") {
		return nil
	}
	return err
}
