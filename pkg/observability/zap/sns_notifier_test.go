package zap

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
)

type fakeSNSClient struct {
	last *sns.PublishInput
	err  error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.last = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSNotifier_PublishesEntry(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")

	client := &fakeSNSClient{}
	n := NewSNSNotifier(client, " arn:aws:sns:us-east-1:123:errors ", SNSNotifierOptions{})

	err := n.Notify(context.Background(), observability.LogEntry{Level: "error", Message: "bulk failed", RequestID: "req-1"})
	require.NoError(t, err)
	require.NotNil(t, client.last)
	require.Equal(t, "arn:aws:sns:us-east-1:123:errors", aws.ToString(client.last.TopicArn))
	require.Equal(t, defaultSubject, aws.ToString(client.last.Subject))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.last.Message)), &body))
	entry := body["entry"].(map[string]any)
	require.Equal(t, "bulk failed", entry["message"])
	require.Equal(t, "req-1", entry["request_id"])
	require.Equal(t, "us-east-1", body["env"].(map[string]any)["aws_region"])
}

func TestSNSNotifier_TruncatesSubject(t *testing.T) {
	client := &fakeSNSClient{}
	n := NewSNSNotifier(client, "arn:topic", SNSNotifierOptions{Subject: strings.Repeat("s", 150)})

	require.NoError(t, n.Notify(context.Background(), observability.LogEntry{Message: "x"}))
	require.Len(t, aws.ToString(client.last.Subject), maxSubjectLen)
}

func TestSNSNotifier_Errors(t *testing.T) {
	var nilNotifier *SNSNotifier
	require.Error(t, nilNotifier.Notify(context.Background(), observability.LogEntry{}))

	require.Error(t, NewSNSNotifier(&fakeSNSClient{}, "", SNSNotifierOptions{}).Notify(context.Background(), observability.LogEntry{}))

	failing := &fakeSNSClient{err: errors.New("throttled")}
	require.EqualError(t, NewSNSNotifier(failing, "arn:topic", SNSNotifierOptions{}).Notify(context.Background(), observability.LogEntry{}), "throttled")
}

func TestWithSNSNotifications_EmptyTopicIsDisabled(t *testing.T) {
	opts := &loggerOptions{}
	WithSNSNotifications(context.Background(), "  ", "subject")(opts)
	require.Nil(t, opts.notifier)
	require.NoError(t, opts.initErr)
}
