package deadletter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

// maxKafkaMessageBytes matches the broker default message.max.bytes.
const maxKafkaMessageBytes = 1024 * 1024

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes envelopes to a topic keyed by document id, so every
// envelope for one document lands on the same partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

var _ Sink = (*KafkaSink)(nil)

func NewKafkaSink(w messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  5,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

func (s *KafkaSink) Enqueue(ctx context.Context, env replicate.DeadLetterEnvelope) error {
	if s == nil || s.writer == nil {
		return fmt.Errorf("deadletter: kafka sink is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := encodeEnvelope(env, maxKafkaMessageBytes)
	if err != nil {
		return err
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Index + "#" + env.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "envelope_id", Value: []byte(env.EnvelopeID)},
			{Key: "op_type", Value: []byte(env.OpType)},
			{Key: "status", Value: []byte(strconv.Itoa(env.Status))},
		},
	})
	if err != nil {
		return fmt.Errorf("deadletter: kafka write to %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
