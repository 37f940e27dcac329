package testkit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/searchreplicator/pkg/attr"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

const DefaultStreamARN = "arn:aws:dynamodb:us-east-1:000000000000:table/Orders/stream/2026-01-01T00:00:00.000"

type StreamEventOptions struct {
	StreamARN string
	Records   []StreamRecordOptions
}

type StreamRecordOptions struct {
	EventID        string
	EventName      string
	Keys           attr.Map
	NewImage       attr.Map
	OldImage       attr.Map
	SequenceNumber string
}

func Insert(keys, image attr.Map) StreamRecordOptions {
	return StreamRecordOptions{EventName: "INSERT", Keys: keys, NewImage: image}
}

func Modify(keys, image attr.Map) StreamRecordOptions {
	return StreamRecordOptions{EventName: "MODIFY", Keys: keys, NewImage: image}
}

func Remove(keys attr.Map) StreamRecordOptions {
	return StreamRecordOptions{EventName: "REMOVE", Keys: keys}
}

// Key is a single string partition key.
func Key(name, value string) attr.Map {
	return attr.Map{{Name: name, Value: attr.String(value)}}
}

type streamChange struct {
	Keys           attr.Map `json:"Keys,omitempty"`
	NewImage       attr.Map `json:"NewImage,omitempty"`
	OldImage       attr.Map `json:"OldImage,omitempty"`
	SequenceNumber string   `json:"SequenceNumber"`
	SizeBytes      int64    `json:"SizeBytes"`
	StreamViewType string   `json:"StreamViewType"`
}

type streamRecord struct {
	EventID        string       `json:"eventID"`
	EventName      string       `json:"eventName"`
	EventVersion   string       `json:"eventVersion"`
	EventSource    string       `json:"eventSource"`
	AWSRegion      string       `json:"awsRegion"`
	Change         streamChange `json:"dynamodb"`
	EventSourceARN string       `json:"eventSourceARN"`
}

// StreamEvent renders a DynamoDB Streams Lambda payload. Attribute maps keep the
// order they were built in. Missing event ids and sequence numbers are numbered
// from 1.
func StreamEvent(opts StreamEventOptions) json.RawMessage {
	arn := strings.TrimSpace(opts.StreamARN)
	if arn == "" {
		arn = DefaultStreamARN
	}

	records := make([]streamRecord, 0, len(opts.Records))
	for i, rec := range opts.Records {
		records = append(records, streamRecord{
			EventID:        defaultString(rec.EventID, fmt.Sprintf("ddb-%d", i+1)),
			EventName:      defaultString(rec.EventName, "MODIFY"),
			EventVersion:   "1.1",
			EventSource:    "aws:dynamodb",
			AWSRegion:      "us-east-1",
			EventSourceARN: arn,
			Change: streamChange{
				Keys:           rec.Keys,
				NewImage:       rec.NewImage,
				OldImage:       rec.OldImage,
				SequenceNumber: defaultString(rec.SequenceNumber, sequenceNumber(i)),
				SizeBytes:      64,
				StreamViewType: "NEW_AND_OLD_IMAGES",
			},
		})
	}

	body, err := json.Marshal(map[string]any{"Records": records})
	if err != nil {
		panic(fmt.Sprintf("testkit: marshal stream event: %v", err))
	}
	return body
}

// DynamoDBStreamEvent is StreamEvent decoded into the aws-lambda-go event type.
func DynamoDBStreamEvent(opts StreamEventOptions) events.DynamoDBEvent {
	var out events.DynamoDBEvent
	if err := json.Unmarshal(StreamEvent(opts), &out); err != nil {
		panic(fmt.Sprintf("testkit: decode stream event: %v", err))
	}
	return out
}

// ChangeRecords builds pipeline input directly, numbered like StreamEvent.
func ChangeRecords(recs ...StreamRecordOptions) []replicate.ChangeRecord {
	out := make([]replicate.ChangeRecord, 0, len(recs))
	for i, rec := range recs {
		out = append(out, replicate.ChangeRecord{
			EventID:        defaultString(rec.EventID, fmt.Sprintf("ddb-%d", i+1)),
			Kind:           replicate.EventKind(defaultString(rec.EventName, "MODIFY")),
			Keys:           rec.Keys,
			NewImage:       rec.NewImage,
			SequenceNumber: defaultString(rec.SequenceNumber, sequenceNumber(i)),
		})
	}
	return out
}

func sequenceNumber(i int) string {
	return fmt.Sprintf("%d", (i+1)*100)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
