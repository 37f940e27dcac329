// Package handler adapts the replication pipeline to a DynamoDB Streams Lambda
// trigger.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
	"github.com/theory-cloud/searchreplicator/pkg/stream"
)

type replicator interface {
	ReplicateWithLogger(ctx context.Context, logger observability.StructuredLogger, records []replicate.ChangeRecord) (replicate.Result, error)
}

type Options struct {
	// ReportBatchItemFailures answers retryable outcomes with a partial batch
	// response checkpointed at the earliest failing record instead of an error.
	// The event-source mapping must have ReportBatchItemFailures enabled.
	ReportBatchItemFailures bool
}

type Handler struct {
	replicator replicator
	logger     observability.StructuredLogger
	opts       Options
}

func New(r replicator, logger observability.StructuredLogger, opts Options) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: replicator is required")
	}
	return &Handler{
		replicator: r,
		logger:     observability.OrNoOp(logger),
		opts:       opts,
	}, nil
}

// Handle processes one raw DynamoDB Streams payload. A returned error makes the
// event-source mapping redeliver the whole batch.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (events.DynamoDBEventResponse, error) {
	ctx = ensureContext(ctx)

	event, err := stream.Decode(raw)
	if err != nil {
		logger := h.scopedLogger(ctx, "")
		logger.Error("malformed stream event", map[string]any{"error": err})
		h.flush(ctx, logger)
		return events.DynamoDBEventResponse{}, err
	}
	return h.serve(ctx, event)
}

// HandleEvent processes an already decoded event. Attribute maps are ordered by
// name because the decoded form has no member order.
func (h *Handler) HandleEvent(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	ctx = ensureContext(ctx)

	event, err := stream.FromLambdaEvent(ev)
	if err != nil {
		return events.DynamoDBEventResponse{}, err
	}
	return h.serve(ctx, event)
}

func (h *Handler) serve(ctx context.Context, event stream.Event) (events.DynamoDBEventResponse, error) {
	logger := h.scopedLogger(ctx, event.TableName())
	defer h.flush(ctx, logger)

	for _, rejected := range event.Rejected {
		logger.Warn("dropping malformed record", recordFields(rejected))
	}

	records, skipped := event.ChangeRecords()
	for _, err := range skipped {
		var recErr stream.RecordError
		if errors.As(err, &recErr) {
			logger.Warn("skipping foreign record", recordFields(recErr))
			continue
		}
		logger.Warn("skipping foreign record", map[string]any{"reason": err})
	}

	_, err := h.replicator.ReplicateWithLogger(ctx, logger, records)
	if err == nil {
		return events.DynamoDBEventResponse{}, nil
	}

	var retryable *replicate.RetryableOutcomesError
	if h.opts.ReportBatchItemFailures && errors.As(err, &retryable) && retryable.First.SequenceNumber != "" {
		logger.Warn("reporting batch item failure", map[string]any{
			"sequence_number": retryable.First.SequenceNumber,
			"event_id":        retryable.First.EventID,
			"retryable":       retryable.Count,
		})
		return events.DynamoDBEventResponse{
			BatchItemFailures: []events.DynamoDBBatchItemFailure{{ItemIdentifier: retryable.First.SequenceNumber}},
		}, nil
	}
	return events.DynamoDBEventResponse{}, err
}

func (h *Handler) scopedLogger(ctx context.Context, table string) observability.StructuredLogger {
	logger := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok && strings.TrimSpace(lc.AwsRequestID) != "" {
		logger = logger.WithRequestID(lc.AwsRequestID)
	}
	if table != "" {
		logger = logger.WithTable(table)
	}
	return logger
}

func (h *Handler) flush(ctx context.Context, logger observability.StructuredLogger) {
	if err := logger.Flush(ctx); err != nil {
		h.logger.Warn("log flush failed", map[string]any{"error": err})
	}
}

func recordFields(err stream.RecordError) map[string]any {
	return map[string]any{
		"position":        err.Position,
		"event_id":        err.EventID,
		"sequence_number": err.SequenceNumber,
		"reason":          err.Err,
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
