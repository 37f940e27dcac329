package replicate

import (
	"context"
	"encoding/json"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
)

// RouteResult counts what the router did with a batch of outcomes.
type RouteResult struct {
	Succeeded          int
	DeadLettered       int
	DeadLetterFailures int
	// Retryable holds the outcomes left for whole-batch redelivery, in batch order.
	Retryable []Outcome
}

// Router sends non-retryable outcomes to the dead-letter sink.
type Router struct {
	sink   DeadLetterSink
	logger observability.StructuredLogger
	clock  Clock
	ids    IDGenerator
}

func NewRouter(sink DeadLetterSink, logger observability.StructuredLogger, clock Clock, ids IDGenerator) *Router {
	if clock == nil {
		clock = RealClock{}
	}
	if ids == nil {
		ids = ULIDGenerator{}
	}
	return &Router{
		sink:   sink,
		logger: observability.OrNoOp(logger),
		clock:  clock,
		ids:    ids,
	}
}

// Route classifies every outcome. Dead-letter failures are logged and counted;
// they never stop the remaining outcomes from being routed.
func (r *Router) Route(ctx context.Context, outcomes []Outcome, ops []WriteOperation) RouteResult {
	if ctx == nil {
		ctx = context.Background()
	}

	var res RouteResult
	for _, out := range outcomes {
		switch out.Class {
		case Success:
			res.Succeeded++
		case NonRetryable:
			if r.deadLetter(ctx, out, operationAt(ops, out)) {
				res.DeadLettered++
			} else {
				res.DeadLetterFailures++
			}
		default:
			res.Retryable = append(res.Retryable, out)
		}
	}
	return res
}

func (r *Router) deadLetter(ctx context.Context, out Outcome, op WriteOperation) bool {
	env := r.envelope(out, op)
	fields := map[string]any{
		"envelope_id": env.EnvelopeID,
		"op_type":     string(out.Kind),
		"index":       out.Index,
		"position":    out.Position,
		"id":          out.ID,
		"status":      out.Status,
		"cause":       out.Cause,
	}

	if r.sink == nil {
		fields["error"] = ErrNoDeadLetterSink
		r.logger.Error("dead-letter enqueue failed", fields)
		return false
	}
	if err := r.sink.Enqueue(ctx, env); err != nil {
		fields["error"] = err
		r.logger.Error("dead-letter enqueue failed", fields)
		return false
	}
	r.logger.Info("operation dead-lettered", fields)
	return true
}

func (r *Router) envelope(out Outcome, op WriteOperation) DeadLetterEnvelope {
	env := DeadLetterEnvelope{
		EnvelopeID: r.ids.NewID(),
		ID:         out.ID,
		OpType:     out.Kind,
		Index:      out.Index,
		Position:   out.Position,
		Status:     out.Status,
		Cause:      out.Cause,
		Timestamp:  r.clock.Now(),
	}
	if op == nil {
		return env
	}

	origin := op.Source()
	env.EventID = origin.EventID
	env.SequenceNumber = origin.SequenceNumber

	if up, ok := op.(Upsert); ok && up.Document != nil {
		doc, err := json.Marshal(up.Document)
		if err != nil {
			r.logger.Warn("dead-letter source document not serializable", map[string]any{"id": out.ID, "error": err})
			env.SourceOmitted = true
		} else {
			env.Source = doc
		}
	}
	return env
}

func operationAt(ops []WriteOperation, out Outcome) WriteOperation {
	if out.Position < 0 || out.Position >= len(ops) {
		return nil
	}
	op := ops[out.Position]
	if op.DocID() != out.ID {
		return nil
	}
	return op
}
