package zap

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
	"github.com/theory-cloud/searchreplicator/pkg/sanitization"
)

const (
	maxSubjectLen = 100
	maxMessageLen = 256 * 1024

	defaultSubject = "searchreplicator error"
)

type snsAPI interface {
	Publish(
		ctx context.Context,
		params *sns.PublishInput,
		optFns ...func(*sns.Options),
	) (*sns.PublishOutput, error)
}

type SNSNotifierOptions struct {
	Subject string
}

// SNSNotifier publishes error-level log entries to an SNS topic.
type SNSNotifier struct {
	client   snsAPI
	topicARN string
	subject  string
}

var _ observability.ErrorNotifier = (*SNSNotifier)(nil)

func NewSNSNotifier(client snsAPI, topicARN string, opts SNSNotifierOptions) *SNSNotifier {
	return &SNSNotifier{
		client:   client,
		topicARN: strings.TrimSpace(topicARN),
		subject:  strings.TrimSpace(opts.Subject),
	}
}

func (n *SNSNotifier) Notify(ctx context.Context, entry observability.LogEntry) error {
	if n == nil || n.client == nil {
		return errors.New("observability/zap: sns notifier is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n.topicARN == "" {
		return errors.New("observability/zap: sns topic arn is empty")
	}

	body, err := json.Marshal(map[string]any{
		"entry": entry,
		"env": map[string]string{
			"aws_region":               os.Getenv("AWS_REGION"),
			"aws_lambda_function_name": os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		},
	})
	if err != nil {
		return err
	}

	subject := n.subject
	if subject == "" {
		subject = defaultSubject
	}
	subject = sanitization.SanitizeLogString(subject)
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}

	message := string(body)
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	return err
}

// WithSNSNotifications forwards error-level entries to topicARN. An empty topic
// leaves notifications disabled.
func WithSNSNotifications(ctx context.Context, topicARN, subject string) Option {
	return func(opts *loggerOptions) {
		topicARN = strings.TrimSpace(topicARN)
		if topicARN == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			opts.initErr = err
			return
		}
		opts.notifier = NewSNSNotifier(sns.NewFromConfig(awsCfg), topicARN, SNSNotifierOptions{Subject: subject})
	}
}
