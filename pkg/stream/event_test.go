package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/searchreplicator/pkg/attr"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
	"github.com/theory-cloud/searchreplicator/testkit"
)

func TestDecode_KeepsKeyOrder(t *testing.T) {
	t.Parallel()

	keys := attr.Map{
		{Name: "tenant", Value: attr.String("t1")},
		{Name: "id", Value: attr.Number("42")},
	}
	raw := testkit.StreamEvent(testkit.StreamEventOptions{Records: []testkit.StreamRecordOptions{
		testkit.Insert(keys, testkit.Key("name", "Alice")),
	}})

	ev, err := Decode(raw)
	require.NoError(t, err)
	require.Empty(t, ev.Rejected)
	require.Len(t, ev.Records, 1)
	require.Equal(t, []string{"tenant", "id"}, ev.Records[0].Change.Keys.Names())

	recs, errs := ev.ChangeRecords()
	require.Empty(t, errs)
	require.Equal(t, replicate.EventInsert, recs[0].Kind)
	require.Equal(t, "100", recs[0].SequenceNumber)

	id, err := replicate.DocumentID(recs[0].Keys)
	require.NoError(t, err)
	require.Equal(t, "t1:42", id)

	require.Equal(t, "Orders", ev.TableName())
}

func TestDecode_RejectsMalformedRecordOnly(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"Records":[
		{"eventID":"bad","eventName":"INSERT","eventSource":"aws:dynamodb","dynamodb":{"Keys":{"pk":{"S":"A","N":"1"}},"SequenceNumber":"1"}},
		{"eventID":"good","eventName":"REMOVE","eventSource":"aws:dynamodb","dynamodb":{"Keys":{"pk":{"S":"B"}},"SequenceNumber":"2"}}
	]}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, ev.Records, 1)
	require.Equal(t, "good", ev.Records[0].EventID)

	require.Len(t, ev.Rejected, 1)
	require.Equal(t, 0, ev.Rejected[0].Position)
	require.Equal(t, "bad", ev.Rejected[0].EventID)
	require.Equal(t, "1", ev.Rejected[0].SequenceNumber)
	require.ErrorIs(t, ev.Rejected[0], ErrMalformedRecord)
}

func TestDecode_RejectedRecordKeepsWhatCanBeRead(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"Records":[
		{"eventID":"e7","dynamodb":{"Keys":{"pk":{"Q":"x"}},"SequenceNumber":"700"}},
		{"eventID":42,"dynamodb":{"SequenceNumber":"800"}}
	]}`)

	ev, err := Decode(raw)
	require.NoError(t, err)
	require.Empty(t, ev.Records)
	require.Len(t, ev.Rejected, 2)
	require.Equal(t, "e7", ev.Rejected[0].EventID)
	require.Equal(t, "700", ev.Rejected[0].SequenceNumber)
	require.Equal(t, 1, ev.Rejected[1].Position)
	require.Empty(t, ev.Rejected[1].EventID)
}

func TestDecode_MalformedEnvelope(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"Records":`))
	require.ErrorIs(t, err, ErrMalformedEvent)

	ev, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, ev.Records)
}

func TestChangeRecords_SkipsForeignSources(t *testing.T) {
	t.Parallel()

	ev := Event{Records: []Record{
		{EventID: "1", EventSource: "aws:sqs"},
		{EventID: "2", EventSource: "aws:dynamodb", EventName: "remove", Change: Change{Keys: testkit.Key("pk", "A")}},
	}}

	recs, errs := ev.ChangeRecords()
	require.Len(t, recs, 1)
	require.Equal(t, replicate.EventRemove, recs[0].Kind)
	require.Len(t, errs, 1)
	require.True(t, errors.Is(errs[0], ErrNotDynamoDB))
}

func TestFromLambdaEvent_OrdersByName(t *testing.T) {
	t.Parallel()

	keys := attr.Map{{Name: "sk", Value: attr.String("b")}, {Name: "pk", Value: attr.String("a")}}
	lambdaEvent := testkit.DynamoDBStreamEvent(testkit.StreamEventOptions{Records: []testkit.StreamRecordOptions{
		testkit.Modify(keys, testkit.Key("n", "x")),
	}})

	ev, err := FromLambdaEvent(lambdaEvent)
	require.NoError(t, err)
	require.Len(t, ev.Records, 1)
	require.Equal(t, []string{"pk", "sk"}, ev.Records[0].Change.Keys.Names())
	require.Equal(t, "100", ev.Records[0].Change.SequenceNumber)
	require.Nil(t, ev.Records[0].Change.OldImage)
}

func TestTableNameFromStreamARN(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Orders", TableNameFromStreamARN("arn:aws:dynamodb:us-east-1:1:table/Orders/stream/2026"))
	require.Equal(t, "Orders", TableNameFromStreamARN("arn:aws:dynamodb:us-east-1:1:table/Orders/index/x"))
	require.Equal(t, "Orders", TableNameFromStreamARN("arn:aws:dynamodb:us-east-1:1:table/Orders"))
	require.Equal(t, "", TableNameFromStreamARN("arn:aws:sqs:us-east-1:1:queue"))
	require.Equal(t, "", TableNameFromStreamARN(" "))
}
