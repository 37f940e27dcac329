package replicate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingNewImage   = errors.New("replicate: new image is absent or empty")
	ErrNoKeyAttributes   = errors.New("replicate: record has no key attributes")
	ErrEmptyDocumentID   = errors.New("replicate: key attributes render an empty document id")
	ErrUnknownEventKind  = errors.New("replicate: unknown event kind")
	ErrItemCountMismatch = errors.New("replicate: bulk response item count does not match request")
	ErrNoDeadLetterSink  = errors.New("replicate: no dead-letter sink configured")
)

// TranslationError is a per-record, non-retryable failure. The record is dropped
// and the rest of the batch continues.
type TranslationError struct {
	SequenceNumber string
	EventID        string
	Err            error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("replicate: translate record %s: %s", e.SequenceNumber, e.Reason())
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Reason is the cause without the package prefix, for log fields.
func (e *TranslationError) Reason() string {
	if e == nil || e.Err == nil {
		return "unknown"
	}
	return strings.TrimPrefix(e.Err.Error(), "replicate: ")
}

// TransportError means the batch call itself could not be completed. The whole
// batch must be redelivered.
type TransportError struct {
	Index      string
	Operations int
	// Status is the HTTP status of a failed batch call, or 0 when none was received.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("replicate: bulk request to %q (%d operations) failed with status %d: %v", e.Index, e.Operations, e.Status, e.Err)
	}
	return fmt.Sprintf("replicate: bulk request to %q (%d operations) failed: %v", e.Index, e.Operations, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RetryableOutcomesError reports that some operations were neither applied nor
// dead-lettered. First is the earliest such operation in batch order.
type RetryableOutcomesError struct {
	Count int
	First Origin
}

func (e *RetryableOutcomesError) Error() string {
	return fmt.Sprintf("replicate: %d operation(s) failed with retryable status; first at sequence number %s", e.Count, e.First.SequenceNumber)
}
