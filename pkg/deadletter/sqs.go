package deadletter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

const (
	// maxSQSMessageBytes is the SQS message size limit, body and attributes together.
	maxSQSMessageBytes = 256 * 1024
	maxFIFOGroupIDLen  = 128
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink sends each envelope as one SQS message.
type SQSSink struct {
	client   sqsAPI
	queueURL string
	fifo     bool
}

var _ Sink = (*SQSSink)(nil)

func NewSQSSink(client sqsAPI, queueURL string) *SQSSink {
	queueURL = strings.TrimSpace(queueURL)
	return &SQSSink{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

func newSQSClient(cfg aws.Config, endpoint string) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// Enqueue sends env. When the envelope is over the SQS limit it is sent without
// its source document and marked source_omitted.
func (s *SQSSink) Enqueue(ctx context.Context, env replicate.DeadLetterEnvelope) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("deadletter: sqs sink is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := map[string]sqstypes.MessageAttributeValue{
		"op_type": {DataType: aws.String("String"), StringValue: aws.String(string(env.OpType))},
		"index":   {DataType: aws.String("String"), StringValue: aws.String(env.Index)},
		"status":  {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(env.Status))},
	}

	body, err := encodeEnvelope(env, maxSQSMessageBytes-attributeBytes(attrs))
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	}
	if s.fifo {
		input.MessageGroupId = aws.String(fifoGroupID(env.Index, env.ID))
		input.MessageDeduplicationId = aws.String(env.EnvelopeID)
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("deadletter: sqs send %s: %w", env.ID, err)
	}
	return nil
}

func (s *SQSSink) Close() error { return nil }

// attributeBytes is the size SQS charges for attrs: name, data type and value.
func attributeBytes(attrs map[string]sqstypes.MessageAttributeValue) int {
	n := 0
	for name, attr := range attrs {
		n += len(name) + len(aws.ToString(attr.DataType)) + len(aws.ToString(attr.StringValue)) + len(attr.BinaryValue)
	}
	return n
}

// fifoGroupID is index#id when SQS accepts it as a group id, otherwise a hex
// digest of it. Group ids are at most 128 printable ASCII characters.
func fifoGroupID(index, id string) string {
	key := index + "#" + id
	if len(key) <= maxFIFOGroupIDLen && isPrintableASCII(key) {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "sha256-" + hex.EncodeToString(sum[:])
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '!' || s[i] > '~' {
			return false
		}
	}
	return s != ""
}

// encodeEnvelope marshals env, dropping the source document when the result would
// exceed limit bytes.
func encodeEnvelope(env replicate.DeadLetterEnvelope, limit int) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("deadletter: encode envelope: %w", err)
	}
	if len(body) <= limit {
		return body, nil
	}

	body, err = json.Marshal(env.WithoutSource())
	if err != nil {
		return nil, fmt.Errorf("deadletter: encode envelope: %w", err)
	}
	if len(body) > limit {
		return nil, fmt.Errorf("deadletter: envelope for %s is %d bytes, over the %d byte limit", env.ID, len(body), limit)
	}
	return body, nil
}

// regionFromQueueURL reads the region from https://sqs.<region>.amazonaws.com/...
func regionFromQueueURL(queueURL string) string {
	u, err := url.Parse(queueURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Hostname(), ".")
	if len(parts) >= 3 && parts[0] == "sqs" && strings.HasPrefix(strings.Join(parts[2:], "."), "amazonaws.com") {
		return parts[1]
	}
	return ""
}
