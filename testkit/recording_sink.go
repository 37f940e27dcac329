package testkit

import (
	"context"
	"sync"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

// RecordingSink is a dead-letter sink that keeps envelopes in memory.
type RecordingSink struct {
	mu        sync.Mutex
	envelopes []replicate.DeadLetterEnvelope
	attempts  int
	err       error
	closed    bool
}

var _ replicate.DeadLetterSink = (*RecordingSink)(nil)

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// FailWith makes every later Enqueue fail with err; nil restores success.
func (s *RecordingSink) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *RecordingSink) Enqueue(_ context.Context, envelope replicate.DeadLetterEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.err != nil {
		return s.err
	}
	s.envelopes = append(s.envelopes, envelope)
	return nil
}

func (s *RecordingSink) Envelopes() []replicate.DeadLetterEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]replicate.DeadLetterEnvelope, len(s.envelopes))
	copy(out, s.envelopes)
	return out
}

// Attempts counts Enqueue calls, failed ones included.
func (s *RecordingSink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *RecordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
