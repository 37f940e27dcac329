package deadletter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_SelectsSinkByAddress(t *testing.T) {
	resetDeadLetterTableNameOverride(t)
	t.Cleanup(func() { resetDeadLetterTableNameOverride(t) })

	sqsSink, err := Open(context.Background(), "https://sqs.us-east-1.amazonaws.com/123/dlq", WithSQSClient(&fakeSQSClient{}))
	require.NoError(t, err)
	require.IsType(t, &SQSSink{}, sqsSink)

	db, _ := mockCreate()
	tableSink, err := Open(context.Background(), "dynamodb://replicator-dlq", WithDB(db))
	require.NoError(t, err)
	require.IsType(t, &TableSink{}, tableSink)
	require.Equal(t, "replicator-dlq", (&DeadLetterItem{}).TableName())

	w := &fakeWriter{}
	kafkaSink, err := Open(context.Background(), "kafka://b1:9092,b2/replicator-dlq", WithKafkaWriter(w))
	require.NoError(t, err)
	require.IsType(t, &KafkaSink{}, kafkaSink)
	require.Equal(t, "replicator-dlq", kafkaSink.(*KafkaSink).topic)
}

func TestOpen_RejectsBadAddresses(t *testing.T) {
	for _, addr := range []string{"", "queue-name", "ftp://x/y", "dynamodb://", "kafka:///topic", "kafka://broker"} {
		_, err := Open(context.Background(), addr, WithKafkaWriter(&fakeWriter{}), WithSQSClient(&fakeSQSClient{}))
		require.ErrorIs(t, err, ErrUnsupportedAddress, addr)
	}
}

func TestNewKafkaWriter(t *testing.T) {
	w := newKafkaWriter([]string{"b1:9092"}, "dlq")
	require.Equal(t, "dlq", w.Topic)
	require.Equal(t, "b1:9092", w.Addr.String())
}
