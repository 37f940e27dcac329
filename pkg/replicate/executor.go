package replicate

import (
	"context"
	"errors"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
)

// ItemResult is the search engine's per-item response, aligned positionally with
// the submitted operations.
type ItemResult struct {
	Action string
	Index  string
	ID     string
	Status int
	// Cause is the engine's error description for a failed item.
	Cause string
}

// BulkIndexer submits operations as one batch call. It returns an error only when
// the call itself could not be completed.
type BulkIndexer interface {
	Bulk(ctx context.Context, index string, ops []WriteOperation) ([]ItemResult, error)
}

// Outcome is the classified result of one operation.
type Outcome struct {
	ID       string
	Kind     OpKind
	Index    string
	Position int
	Status   int
	Class    StatusClass
	Cause    string
}

// Executor submits a batch of operations and classifies each item result.
type Executor struct {
	indexer BulkIndexer
	index   string
	policy  Policy
	logger  observability.StructuredLogger
}

func NewExecutor(indexer BulkIndexer, index string, policy Policy, logger observability.StructuredLogger) *Executor {
	return &Executor{
		indexer: indexer,
		index:   index,
		policy:  policy,
		logger:  observability.OrNoOp(logger),
	}
}

// Execute returns one Outcome per operation in submission order. An empty batch
// makes no call. Any failure of the call itself is a *TransportError.
func (e *Executor) Execute(ctx context.Context, ops []WriteOperation) ([]Outcome, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.indexer == nil {
		return nil, &TransportError{Index: e.index, Operations: len(ops), Err: errors.New("replicate: no bulk indexer configured")}
	}

	items, err := e.indexer.Bulk(ctx, e.index, ops)
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			return nil, err
		}
		return nil, &TransportError{Index: e.index, Operations: len(ops), Err: err}
	}
	if len(items) != len(ops) {
		return nil, &TransportError{Index: e.index, Operations: len(ops), Err: ErrItemCountMismatch}
	}

	outcomes := make([]Outcome, len(ops))
	for i, op := range ops {
		item := items[i]

		index := item.Index
		if index == "" {
			index = e.index
		}
		if item.ID != "" && item.ID != op.DocID() {
			e.logger.Warn("bulk response item id does not match request", map[string]any{
				"position":    i,
				"id":          op.DocID(),
				"response_id": item.ID,
			})
		}

		out := Outcome{
			ID:       op.DocID(),
			Kind:     op.Kind(),
			Index:    index,
			Position: i,
			Status:   item.Status,
			Class:    e.policy.Classify(op.Kind(), item.Status),
			Cause:    item.Cause,
		}
		outcomes[i] = out
		e.logOutcome(out)
	}
	return outcomes, nil
}

func (e *Executor) logOutcome(out Outcome) {
	fields := map[string]any{
		"op_type":  string(out.Kind),
		"index":    out.Index,
		"position": out.Position,
		"id":       out.ID,
		"status":   out.Status,
		"class":    out.Class.String(),
	}
	if out.Class == Success {
		e.logger.Info("operation applied", fields)
		return
	}
	if out.Cause != "" {
		fields["cause"] = out.Cause
	}
	e.logger.Warn("operation failed", fields)
}
