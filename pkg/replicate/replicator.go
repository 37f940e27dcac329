package replicate

import (
	"context"
	"errors"
	"strings"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
)

// Config wires a Replicator. Index and Indexer are required.
type Config struct {
	Index   string
	Indexer BulkIndexer
	Sink    DeadLetterSink
	Policy  Policy

	Logger observability.StructuredLogger
	Clock  Clock
	IDs    IDGenerator
}

// Result summarizes one batch.
type Result struct {
	Records             int
	Operations          int
	TranslationFailures int
	Succeeded           int
	DeadLettered        int
	DeadLetterFailures  int
	Retryable           []Outcome
}

// Replicator runs the translate, submit, classify and route pipeline for one
// batch at a time. It holds no per-batch state and is safe to reuse.
type Replicator struct {
	index   string
	indexer BulkIndexer
	sink    DeadLetterSink
	policy  Policy
	clock   Clock
	ids     IDGenerator
	logger  observability.StructuredLogger
}

func New(cfg Config) (*Replicator, error) {
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, errors.New("replicate: index is required")
	}
	if cfg.Indexer == nil {
		return nil, errors.New("replicate: bulk indexer is required")
	}
	return &Replicator{
		index:   cfg.Index,
		indexer: cfg.Indexer,
		sink:    cfg.Sink,
		policy:  cfg.Policy,
		clock:   cfg.Clock,
		ids:     cfg.IDs,
		logger:  observability.OrNoOp(cfg.Logger),
	}, nil
}

// Replicate applies records to the index. It returns a *TransportError when the
// batch call failed and a *RetryableOutcomesError when any operation needs
// redelivery; translation failures and dead-letter failures are only counted.
func (r *Replicator) Replicate(ctx context.Context, records []ChangeRecord) (Result, error) {
	return r.replicate(ctx, r.logger, records)
}

// ReplicateWithLogger is Replicate with a logger scoped to the caller's invocation.
func (r *Replicator) ReplicateWithLogger(ctx context.Context, logger observability.StructuredLogger, records []ChangeRecord) (Result, error) {
	if logger == nil {
		logger = r.logger
	}
	return r.replicate(ctx, logger, records)
}

func (r *Replicator) replicate(ctx context.Context, logger observability.StructuredLogger, records []ChangeRecord) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	builder := NewBuilder(logger)
	executor := NewExecutor(r.indexer, r.index, r.policy, logger)
	router := NewRouter(r.sink, logger, r.clock, r.ids)

	res := Result{Records: len(records)}

	ops, failures := builder.Build(records)
	res.Operations = len(ops)
	res.TranslationFailures = len(failures)

	outcomes, err := executor.Execute(ctx, ops)
	if err != nil {
		logger.Error("bulk request failed", map[string]any{
			"index":      r.index,
			"operations": len(ops),
			"error":      err,
		})
		return res, err
	}

	routed := router.Route(ctx, outcomes, ops)
	res.Succeeded = routed.Succeeded
	res.DeadLettered = routed.DeadLettered
	res.DeadLetterFailures = routed.DeadLetterFailures
	res.Retryable = routed.Retryable

	logger.Info("batch replicated", map[string]any{
		"records":              res.Records,
		"operations":           res.Operations,
		"translation_failures": res.TranslationFailures,
		"succeeded":            res.Succeeded,
		"dead_lettered":        res.DeadLettered,
		"dead_letter_failures": res.DeadLetterFailures,
		"retryable":            len(res.Retryable),
	})

	if len(res.Retryable) > 0 {
		first := res.Retryable[0]
		return res, &RetryableOutcomesError{Count: len(res.Retryable), First: ops[first.Position].Source()}
	}
	return res, nil
}
