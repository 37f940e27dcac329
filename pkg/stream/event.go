package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/searchreplicator/pkg/attr"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

const eventSourceDynamoDB = "aws:dynamodb"

var (
	ErrMalformedEvent  = errors.New("stream: malformed event")
	ErrNotDynamoDB     = errors.New("stream: record is not a dynamodb stream record")
	ErrMalformedRecord = errors.New("stream: malformed record")
)

// Event is a decoded DynamoDB Streams Lambda payload.
type Event struct {
	Records []Record
	// Rejected lists records that could not be decoded; they are not in Records.
	Rejected []RecordError
}

type Record struct {
	EventID        string `json:"eventID"`
	EventName      string `json:"eventName"`
	EventVersion   string `json:"eventVersion"`
	EventSource    string `json:"eventSource"`
	EventSourceARN string `json:"eventSourceARN"`
	AWSRegion      string `json:"awsRegion"`
	Change         Change `json:"dynamodb"`
}

type Change struct {
	Keys           attr.Map `json:"Keys"`
	NewImage       attr.Map `json:"NewImage"`
	OldImage       attr.Map `json:"OldImage"`
	SequenceNumber string   `json:"SequenceNumber"`
	SizeBytes      int64    `json:"SizeBytes"`
	StreamViewType string   `json:"StreamViewType"`
}

// RecordError describes one record of the batch that was set aside.
type RecordError struct {
	Position       int
	EventID        string
	SequenceNumber string
	Err            error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("stream: record %d (%s): %v", e.Position, e.EventID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Decode parses a raw Lambda payload, keeping the producer's attribute order.
// A record that fails to decode is rejected on its own; only an unreadable
// envelope fails the whole event.
func Decode(raw []byte) (Event, error) {
	var envelope struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := Event{Records: make([]Record, 0, len(envelope.Records))}
	for i, body := range envelope.Records {
		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
			eventID, sequenceNumber := probeRecord(body)
			out.Rejected = append(out.Rejected, RecordError{
				Position:       i,
				EventID:        eventID,
				SequenceNumber: sequenceNumber,
				Err:            fmt.Errorf("%w: %v", ErrMalformedRecord, err),
			})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// probeRecord recovers the identifiers of a record that failed to decode, for
// the drop log.
func probeRecord(body []byte) (eventID, sequenceNumber string) {
	var probe struct {
		EventID string `json:"eventID"`
		Change  struct {
			SequenceNumber string `json:"SequenceNumber"`
		} `json:"dynamodb"`
	}
	_ = json.Unmarshal(body, &probe)
	return probe.EventID, probe.Change.SequenceNumber
}

// FromLambdaEvent converts an already decoded event. Go maps have no member
// order, so attribute maps are ordered by name.
func FromLambdaEvent(ev events.DynamoDBEvent) (Event, error) {
	out := Event{Records: make([]Record, 0, len(ev.Records))}
	for i, r := range ev.Records {
		rec := Record{
			EventID:        r.EventID,
			EventName:      r.EventName,
			EventVersion:   r.EventVersion,
			EventSource:    r.EventSource,
			EventSourceARN: r.EventSourceArn,
			AWSRegion:      r.AWSRegion,
			Change: Change{
				SequenceNumber: r.Change.SequenceNumber,
				SizeBytes:      r.Change.SizeBytes,
				StreamViewType: r.Change.StreamViewType,
			},
		}

		var err error
		if rec.Change.Keys, err = attr.MapFromLambda(r.Change.Keys); err == nil {
			if rec.Change.NewImage, err = attr.MapFromLambda(r.Change.NewImage); err == nil {
				rec.Change.OldImage, err = attr.MapFromLambda(r.Change.OldImage)
			}
		}
		if err != nil {
			out.Rejected = append(out.Rejected, RecordError{
				Position:       i,
				EventID:        r.EventID,
				SequenceNumber: r.Change.SequenceNumber,
				Err:            fmt.Errorf("%w: %v", ErrMalformedRecord, err),
			})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// ChangeRecords maps records to pipeline input in delivery order. Records from
// another event source are skipped and reported.
func (e Event) ChangeRecords() ([]replicate.ChangeRecord, []error) {
	out := make([]replicate.ChangeRecord, 0, len(e.Records))
	var errs []error
	for i, rec := range e.Records {
		source := strings.TrimSpace(rec.EventSource)
		if source != "" && source != eventSourceDynamoDB {
			errs = append(errs, RecordError{
				Position:       i,
				EventID:        rec.EventID,
				SequenceNumber: rec.Change.SequenceNumber,
				Err:            fmt.Errorf("%w: %q", ErrNotDynamoDB, source),
			})
			continue
		}
		out = append(out, rec.ChangeRecord())
	}
	return out, errs
}

func (r Record) ChangeRecord() replicate.ChangeRecord {
	return replicate.ChangeRecord{
		EventID:        r.EventID,
		Kind:           replicate.EventKind(strings.ToUpper(strings.TrimSpace(r.EventName))),
		Keys:           r.Change.Keys,
		NewImage:       r.Change.NewImage,
		SequenceNumber: r.Change.SequenceNumber,
	}
}

// TableName returns the source table of the batch, taken from the first record
// with a stream ARN.
func (e Event) TableName() string {
	for _, rec := range e.Records {
		if table := TableNameFromStreamARN(rec.EventSourceARN); table != "" {
			return table
		}
	}
	return ""
}

// TableNameFromStreamARN extracts the table from
// arn:aws:dynamodb:<region>:<account>:table/<table>/stream/<label>.
func TableNameFromStreamARN(arn string) string {
	arn = strings.TrimSpace(arn)
	if arn == "" {
		return ""
	}
	if _, after, ok := strings.Cut(arn, ":table/"); ok {
		if table, _, ok := strings.Cut(after, "/stream/"); ok {
			return table
		}
		if table, _, ok := strings.Cut(after, "/"); ok {
			return table
		}
		return after
	}
	return ""
}
