package deadletter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

var ErrUnsupportedAddress = errors.New("deadletter: unsupported sink address")

// Sink is a dead-letter sink that owns client resources.
type Sink interface {
	replicate.DeadLetterSink
	Close() error
}

type Option func(*options)

type options struct {
	region   string
	endpoint string
	logger   observability.StructuredLogger

	sqsClient   sqsAPI
	db          tablecore.DB
	kafkaWriter messageWriter
}

// WithRegion overrides the region derived from the address or the environment.
func WithRegion(region string) Option {
	return func(o *options) { o.region = strings.TrimSpace(region) }
}

// WithEndpoint points AWS clients at a local endpoint using static dummy credentials.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = strings.TrimSpace(endpoint) }
}

func WithLogger(logger observability.StructuredLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSQSClient supplies the SQS client instead of building one from the environment.
func WithSQSClient(client sqsAPI) Option {
	return func(o *options) { o.sqsClient = client }
}

// WithDB supplies the TableTheory handle for dynamodb:// addresses.
func WithDB(db tablecore.DB) Option {
	return func(o *options) { o.db = db }
}

// WithKafkaWriter supplies the writer for kafka:// addresses.
func WithKafkaWriter(w messageWriter) Option {
	return func(o *options) { o.kafkaWriter = w }
}

// Open selects a sink from address:
//
//	https://sqs.<region>.amazonaws.com/<account>/<queue>   SQS queue
//	dynamodb://<table>                                     DynamoDB table
//	kafka://<broker>[,<broker>...]/<topic>                 Kafka topic
func Open(ctx context.Context, address string, opts ...Option) (Sink, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	address = strings.TrimSpace(address)
	scheme, rest, ok := strings.Cut(address, "://")
	if !ok || scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAddress, address)
	}

	switch strings.ToLower(scheme) {
	case "http", "https":
		client := o.sqsClient
		if client == nil {
			region := o.region
			if region == "" {
				region = regionFromQueueURL(address)
			}
			cfg, err := loadAWSConfig(ctx, region, o.endpoint)
			if err != nil {
				return nil, err
			}
			client = newSQSClient(cfg, o.endpoint)
		}
		return NewSQSSink(client, address), nil

	case "dynamodb":
		table := strings.Trim(rest, "/")
		if table == "" {
			return nil, fmt.Errorf("%w: missing table in %q", ErrUnsupportedAddress, address)
		}
		db := o.db
		if db == nil {
			var err error
			db, err = newTableDB(ctx, o.region, o.endpoint)
			if err != nil {
				return nil, err
			}
		}
		return NewTableSink(db, TableSinkConfig{TableName: table, Logger: o.logger})

	case "kafka":
		hosts, topic, _ := strings.Cut(rest, "/")
		brokers := splitNonEmpty(hosts, ",")
		topic = strings.Trim(topic, "/")
		if len(brokers) == 0 || topic == "" {
			return nil, fmt.Errorf("%w: kafka address needs brokers and a topic: %q", ErrUnsupportedAddress, address)
		}
		w := o.kafkaWriter
		if w == nil {
			w = newKafkaWriter(brokers, topic)
		}
		return NewKafkaSink(w, topic), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAddress, address)
	}
}

func loadAWSConfig(ctx context.Context, region, endpoint string) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	if endpoint != "" {
		// Local emulators require credentials even though they are not used.
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("deadletter: load aws config: %w", err)
	}
	return cfg, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
