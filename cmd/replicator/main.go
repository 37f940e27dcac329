package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/searchreplicator/pkg/config"
	"github.com/theory-cloud/searchreplicator/pkg/deadletter"
	"github.com/theory-cloud/searchreplicator/pkg/handler"
	"github.com/theory-cloud/searchreplicator/pkg/observability"
	zaplogger "github.com/theory-cloud/searchreplicator/pkg/observability/zap"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
	"github.com/theory-cloud/searchreplicator/pkg/search"
)

type app struct {
	handler *handler.Handler
	logger  observability.StructuredLogger
	sink    deadletter.Sink
}

func (a *app) Close() error {
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("dead-letter sink close failed", map[string]any{"error": err})
		}
	}
	return a.logger.Close()
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := zaplogger.NewZapLogger(observability.LoggerConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}, zaplogger.WithSNSNotifications(ctx, cfg.Replicator.ErrorTopicARN, cfg.Replicator.ErrorSubject))
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	sink, err := deadletter.Open(ctx, cfg.DeadLetter.URL,
		deadletter.WithRegion(cfg.AWS.Region),
		deadletter.WithEndpoint(cfg.DeadLetter.Endpoint),
		deadletter.WithLogger(logger),
	)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	a := &app{logger: logger, sink: sink}

	port, err := cfg.Search.PortNumber()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	client, err := search.New(search.Config{
		Scheme:        cfg.Search.Scheme,
		Host:          cfg.Search.Host,
		Port:          port,
		Username:      cfg.Search.Username,
		Password:      cfg.Search.Password,
		APIKey:        cfg.Search.APIKey,
		Authorization: cfg.Search.Authorization,
		Refresh:       cfg.Search.Refresh,
		Logger:        logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	repl, err := replicate.New(replicate.Config{
		Index:   cfg.Search.Index,
		Indexer: client,
		Sink:    sink,
		Policy:  cfg.Replicator.Policy(),
		Logger:  logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.handler, err = handler.New(repl, logger, handler.Options{
		ReportBatchItemFailures: cfg.Replicator.ReportBatchItemFailures,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info("replicator ready", map[string]any{
		"index":                      cfg.Search.Index,
		"search_address":             search.Config{Scheme: cfg.Search.Scheme, Host: cfg.Search.Host, Port: port}.Address(),
		"non_retryable_statuses":     cfg.Replicator.Policy().NonRetryableStatuses(),
		"report_batch_item_failures": cfg.Replicator.ReportBatchItemFailures,
	})
	return a, nil
}

// setup loads configuration and wires the handler. Any failure is reported on
// stderr so the function fails before it accepts a batch.
func setup(ctx context.Context, stderr io.Writer) (*app, int) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "replicator: FAIL: %v\n", err)
		return nil, 1
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "replicator: FAIL: %v\n", err)
		return nil, 1
	}
	return a, 0
}

func main() {
	a, code := setup(context.Background(), os.Stderr)
	if code != 0 {
		os.Exit(code)
	}
	defer func() { _ = a.Close() }()

	lambda.Start(a.handler.Handle)
}
