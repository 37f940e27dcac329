package replicate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// DeadLetterEnvelope is the durable record of a non-retryable operation. It is
// never modified after creation.
type DeadLetterEnvelope struct {
	EnvelopeID string `json:"envelope_id"`
	ID         string `json:"id"`
	OpType     OpKind `json:"op_type"`
	Index      string `json:"index"`
	Position   int    `json:"position"`
	Status     int    `json:"status"`
	Cause      string `json:"cause"`

	// Source is the converted document of an upsert.
	Source        json.RawMessage `json:"source,omitempty"`
	SourceOmitted bool            `json:"source_omitted,omitempty"`

	EventID        string    `json:"event_id,omitempty"`
	SequenceNumber string    `json:"sequence_number,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// WithoutSource returns a copy without the document, for sinks with a size limit.
func (e DeadLetterEnvelope) WithoutSource() DeadLetterEnvelope {
	if len(e.Source) == 0 {
		return e
	}
	e.Source = nil
	e.SourceOmitted = true
	return e
}

// DeadLetterSink durably enqueues one envelope.
type DeadLetterSink interface {
	Enqueue(ctx context.Context, envelope DeadLetterEnvelope) error
}

// Clock provides the envelope timestamp.
type Clock interface {
	Now() time.Time
}

// RealClock uses time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator provides envelope ids.
type IDGenerator interface {
	NewID() string
}

// ULIDGenerator generates lexicographically sortable envelope ids.
type ULIDGenerator struct{}

func (ULIDGenerator) NewID() string {
	return ulid.Make().String()
}
