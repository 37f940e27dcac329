package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_Enqueue(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	sink := NewKafkaSink(w, "replicator-dlq")
	require.NoError(t, sink.Enqueue(context.Background(), sampleEnvelope()))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	require.Equal(t, "orders#A", string(msg.Key))

	var decoded replicate.DeadLetterEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "01HZX", decoded.EnvelopeID)
	require.Equal(t, "envelope_id", msg.Headers[0].Key)

	require.NoError(t, sink.Close())
	require.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	t.Parallel()

	err := NewKafkaSink(&fakeWriter{err: errors.New("leader not available")}, "t").Enqueue(context.Background(), sampleEnvelope())
	require.ErrorContains(t, err, "leader not available")
}
