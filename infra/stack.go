// Package infra deploys the replicator: the Lambda function, its DynamoDB
// Streams event-source mapping, the dead-letter queue and an optional error
// topic.
package infra

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/searchreplicator/pkg/config"
	"github.com/theory-cloud/searchreplicator/pkg/naming"
)

const appName = "searchreplicator"

type ReplicatorStackProps struct {
	awscdk.StackProps

	Stage string

	// Source stream.
	TableName      string
	TableStreamARN string

	// Directory holding the linux/arm64 "bootstrap" binary.
	CodePath string

	SearchScheme string
	SearchHost   string
	SearchPort   int
	Index        string

	// Credentials and other extra environment, e.g. ES_API_KEY.
	Environment map[string]string

	NonRetryableStatuses    []int
	ReportBatchItemFailures bool
	BisectBatchOnError      bool
	BatchSize               float64
	RetryAttempts           float64

	// NotifyErrors creates an SNS topic that receives error-level log entries.
	NotifyErrors bool
	LogLevel     string
}

func (p *ReplicatorStackProps) validate() error {
	if p == nil {
		return errors.New("infra: props are required")
	}
	var missing []string
	for name, value := range map[string]string{
		"TableName":      p.TableName,
		"TableStreamARN": p.TableStreamARN,
		"CodePath":       p.CodePath,
		"SearchHost":     p.SearchHost,
		"Index":          p.Index,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.New("infra: missing " + strings.Join(missing, ", "))
	}
	return nil
}

// environment renders the function configuration read by config.Load.
func (p *ReplicatorStackProps) environment(queueURL, topicARN *string) *map[string]*string {
	scheme := p.SearchScheme
	if scheme == "" {
		scheme = "https"
	}
	port := p.SearchPort
	if port == 0 {
		port = 443
	}
	statuses := make([]string, 0, len(p.NonRetryableStatuses))
	for _, status := range p.NonRetryableStatuses {
		statuses = append(statuses, strconv.Itoa(status))
	}

	env := map[string]*string{}
	for k, v := range p.Environment {
		env[k] = jsii.String(v)
	}
	env["ES_SCHEME"] = jsii.String(scheme)
	env["ES_HOST"] = jsii.String(p.SearchHost)
	env["ES_PORT"] = jsii.String(strconv.Itoa(port))
	env["ES_INDEX"] = jsii.String(p.Index)
	env["DLQ_URL"] = queueURL
	env["REPLICATOR_REPORT_BATCH_ITEM_FAILURES"] = jsii.String(strconv.FormatBool(p.ReportBatchItemFailures))
	if len(statuses) > 0 {
		env["REPLICATOR_NON_RETRYABLE_STATUSES"] = jsii.String(strings.Join(statuses, ","))
	}
	if p.LogLevel != "" {
		env["LOG_LEVEL"] = jsii.String(p.LogLevel)
	}
	if topicARN != nil {
		env["REPLICATOR_ERROR_TOPIC_ARN"] = topicARN
	}
	return &env
}

// NewReplicatorStack panics on invalid props, like the CDK constructs it uses.
func NewReplicatorStack(scope constructs.Construct, id string, props *ReplicatorStackProps) awscdk.Stack {
	if err := props.validate(); err != nil {
		panic(err)
	}

	stackProps := props.StackProps
	if stackProps.StackName == nil {
		stackProps.StackName = jsii.String(naming.Truncate(naming.ResourceName(appName, props.TableName, "", props.Stage), naming.MaxStackNameLen))
	}
	stack := awscdk.NewStack(scope, jsii.String(id), &stackProps)

	queue := awssqs.NewQueue(stack, jsii.String("DeadLetterQueue"), &awssqs.QueueProps{
		QueueName:       jsii.String(naming.QueueName(appName, props.TableName, props.Stage, false)),
		RetentionPeriod: awscdk.Duration_Days(jsii.Number(14)),
		Encryption:      awssqs.QueueEncryption_SQS_MANAGED,
	})

	var topic awssns.Topic
	var topicARN *string
	if props.NotifyErrors {
		topic = awssns.NewTopic(stack, jsii.String("ErrorTopic"), &awssns.TopicProps{
			TopicName: jsii.String(naming.TopicName(appName, props.TableName, props.Stage)),
		})
		topicARN = topic.TopicArn()
	}

	fn := awslambda.NewFunction(stack, jsii.String("Replicator"), &awslambda.FunctionProps{
		FunctionName: jsii.String(naming.FunctionName(appName, props.TableName, props.Stage)),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Architecture: awslambda.Architecture_ARM_64(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(props.CodePath), nil),
		MemorySize:   jsii.Number(256),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(60)),
		Environment:  props.environment(queue.QueueUrl(), topicARN),
	})
	queue.GrantSendMessages(fn)
	if topic != nil {
		topic.GrantPublish(fn)
	}

	table := awsdynamodb.Table_FromTableAttributes(stack, jsii.String("SourceTable"), &awsdynamodb.TableAttributes{
		TableName:      jsii.String(props.TableName),
		TableStreamArn: jsii.String(props.TableStreamARN),
	})

	batchSize := props.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	sourceProps := &awslambdaeventsources.DynamoEventSourceProps{
		StartingPosition:        awslambda.StartingPosition_TRIM_HORIZON,
		BatchSize:               jsii.Number(batchSize),
		BisectBatchOnError:      jsii.Bool(props.BisectBatchOnError),
		ReportBatchItemFailures: jsii.Bool(props.ReportBatchItemFailures),
	}
	if props.RetryAttempts > 0 {
		sourceProps.RetryAttempts = jsii.Number(props.RetryAttempts)
	}
	fn.AddEventSource(awslambdaeventsources.NewDynamoEventSource(table, sourceProps))

	awscdk.NewCfnOutput(stack, jsii.String("FunctionName"), &awscdk.CfnOutputProps{Value: fn.FunctionName()})
	awscdk.NewCfnOutput(stack, jsii.String("DeadLetterQueueUrl"), &awscdk.CfnOutputProps{Value: queue.QueueUrl()})
	if topic != nil {
		awscdk.NewCfnOutput(stack, jsii.String("ErrorTopicArn"), &awscdk.CfnOutputProps{Value: topic.TopicArn()})
	}

	return stack
}

// ConfigFromContext reads stack props from CDK context keys named after the
// runtime configuration (ES_HOST, ES_INDEX, ...), so one set of names serves
// both deploy and runtime.
func ConfigFromContext(node constructs.Node) *ReplicatorStackProps {
	get := func(key string) string {
		v, _ := node.TryGetContext(jsii.String(key)).(string)
		return strings.TrimSpace(v)
	}

	props := &ReplicatorStackProps{
		Stage:                   get("stage"),
		TableName:               get("table"),
		TableStreamARN:          get("table_stream_arn"),
		CodePath:                get("code_path"),
		SearchScheme:            get("ES_SCHEME"),
		SearchHost:              get("ES_HOST"),
		Index:                   get("ES_INDEX"),
		LogLevel:                get("LOG_LEVEL"),
		ReportBatchItemFailures: get("REPLICATOR_REPORT_BATCH_ITEM_FAILURES") == "true",
		NotifyErrors:            get("notify_errors") == "true",
	}
	if props.CodePath == "" {
		props.CodePath = "dist/replicator"
	}
	if port, err := strconv.Atoi(get("ES_PORT")); err == nil {
		props.SearchPort = port
	}
	if raw := get("REPLICATOR_NON_RETRYABLE_STATUSES"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if status, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				props.NonRetryableStatuses = append(props.NonRetryableStatuses, status)
			}
		}
	}
	return props
}

// Validate checks the rendered function environment against the runtime
// configuration rules before synthesis. Credentials are supplied separately so
// they are not required here.
func (p *ReplicatorStackProps) Validate() error {
	if err := p.validate(); err != nil {
		return err
	}
	port := p.SearchPort
	if port == 0 {
		port = 443
	}
	scheme := p.SearchScheme
	if scheme == "" {
		scheme = "https"
	}
	cfg := config.Config{
		Search: config.Search{
			Host:          p.SearchHost,
			Port:          strconv.Itoa(port),
			Scheme:        scheme,
			Index:         p.Index,
			Authorization: "deploy-time",
		},
		DeadLetter: config.DeadLetter{URL: "https://sqs.deploy-time"},
		Replicator: config.Replicator{NonRetryableStatuses: p.NonRetryableStatuses},
	}
	return cfg.Validate()
}
