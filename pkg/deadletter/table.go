package deadletter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/theory-cloud/tabletheory"
	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tableerrors "github.com/theory-cloud/tabletheory/pkg/errors"
	"github.com/theory-cloud/tabletheory/pkg/session"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

const (
	defaultDeadLetterTableName = "searchreplicator-dead-letters"

	// DynamoDB items are capped at 400KB; leave room for the other attributes.
	maxTableSourceBytes = 350 * 1024
)

var (
	deadLetterTableNameMu       sync.RWMutex
	deadLetterTableNameOverride string
)

// DeadLetterItem is the stored form of an envelope. Items for the same document
// share a partition and sort by time.
type DeadLetterItem struct {
	_ struct{} `theorydb:"naming:snake_case"`

	CreatedAt time.Time `json:"created_at"`

	PartitionKey   string `json:"partition_key" theorydb:"pk,attr:pk"`
	SortKey        string `json:"sort_key" theorydb:"sk,attr:sk"`
	EnvelopeID     string `json:"envelope_id"`
	DocumentID     string `json:"document_id"`
	OpType         string `json:"op_type"`
	Index          string `json:"index"`
	Cause          string `json:"cause"`
	Source         string `json:"source,omitempty" theorydb:"omitempty"`
	EventID        string `json:"event_id,omitempty" theorydb:"omitempty"`
	SequenceNumber string `json:"sequence_number,omitempty" theorydb:"omitempty"`

	// TTL is stored in the DynamoDB TTL attribute ("ttl") as a Unix timestamp in seconds.
	TTL int64 `json:"-" theorydb:"ttl,omitempty"`

	Position      int  `json:"position"`
	Status        int  `json:"status"`
	SourceOmitted bool `json:"source_omitted"`
}

func (*DeadLetterItem) TableName() string {
	deadLetterTableNameMu.RLock()
	defer deadLetterTableNameMu.RUnlock()
	if deadLetterTableNameOverride != "" {
		return deadLetterTableNameOverride
	}
	return defaultDeadLetterTableName
}

// TableTheory caches model metadata, so the table name is fixed for the process
// lifetime once set.
func setDeadLetterTableNameOverride(tableName string) error {
	if tableName == "" {
		return nil
	}

	deadLetterTableNameMu.Lock()
	defer deadLetterTableNameMu.Unlock()

	if deadLetterTableNameOverride != "" && deadLetterTableNameOverride != tableName {
		return fmt.Errorf("deadletter: table name already set to %q (cannot change to %q)", deadLetterTableNameOverride, tableName)
	}
	deadLetterTableNameOverride = tableName
	return nil
}

// ItemFromEnvelope maps an envelope to its stored form.
func ItemFromEnvelope(env replicate.DeadLetterEnvelope, ttl time.Duration) *DeadLetterItem {
	if len(env.Source) > maxTableSourceBytes {
		env = env.WithoutSource()
	}
	item := &DeadLetterItem{
		PartitionKey:   env.Index + "#" + env.ID,
		SortKey:        fmt.Sprintf("%020d#%s", env.Timestamp.UnixNano(), env.EnvelopeID),
		EnvelopeID:     env.EnvelopeID,
		DocumentID:     env.ID,
		OpType:         string(env.OpType),
		Index:          env.Index,
		Cause:          env.Cause,
		Source:         string(env.Source),
		EventID:        env.EventID,
		SequenceNumber: env.SequenceNumber,
		CreatedAt:      env.Timestamp,
		Position:       env.Position,
		Status:         env.Status,
		SourceOmitted:  env.SourceOmitted,
	}
	if ttl > 0 {
		item.TTL = env.Timestamp.Add(ttl).Unix()
	}
	return item
}

type TableSinkConfig struct {
	TableName      string
	TTL            time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Logger         observability.StructuredLogger
}

// TableSink stores envelopes in a DynamoDB table through TableTheory.
type TableSink struct {
	db     tablecore.DB
	config TableSinkConfig
	logger observability.StructuredLogger
}

var _ Sink = (*TableSink)(nil)

func NewTableSink(db tablecore.DB, cfg TableSinkConfig) (*TableSink, error) {
	if db == nil {
		return nil, fmt.Errorf("deadletter: table sink needs a db")
	}
	if cfg.TTL == 0 {
		cfg.TTL = 14 * 24 * time.Hour
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if err := setDeadLetterTableNameOverride(strings.TrimSpace(cfg.TableName)); err != nil {
		return nil, err
	}
	cfg.TableName = (&DeadLetterItem{}).TableName()

	return &TableSink{db: db, config: cfg, logger: observability.OrNoOp(cfg.Logger)}, nil
}

func newTableDB(_ context.Context, region, endpoint string) (tablecore.DB, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if endpoint != "" {
		// DynamoDB Local requires credentials even though they are not used.
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	db, err := tabletheory.NewBasic(session.Config{
		Region:           region,
		Endpoint:         endpoint,
		AWSConfigOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("deadletter: init tabletheory: %w", err)
	}
	return db, nil
}

// Enqueue writes env once. Throttling errors are retried with exponential backoff;
// an item that already exists counts as written.
func (s *TableSink) Enqueue(ctx context.Context, env replicate.DeadLetterEnvelope) error {
	if ctx == nil {
		ctx = context.Background()
	}
	item := ItemFromEnvelope(env, s.config.TTL)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoffMultiplier := 1 << minInt(attempt-1, 10)
			delay := s.config.RetryBaseDelay * time.Duration(backoffMultiplier)
			select {
			case <-ctx.Done():
				return fmt.Errorf("deadletter: table write %s: %w", env.ID, ctx.Err())
			case <-time.After(delay):
			}
		}

		attempts++
		err := s.db.Model(item).WithContext(ctx).IfNotExists().Create()
		if err == nil {
			return nil
		}
		if tableerrors.IsConditionFailed(err) {
			s.logger.Debug("dead-letter item already stored", map[string]any{"envelope_id": env.EnvelopeID})
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return fmt.Errorf("deadletter: table write %s after %d attempt(s): %w", env.ID, attempts, lastErr)
}

func (s *TableSink) Close() error { return nil }

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// TableTheory wraps AWS SDK errors; match on the error codes.
	msg := err.Error()
	for _, needle := range []string{
		"ProvisionedThroughputExceededException",
		"ThrottlingException",
		"RequestLimitExceeded",
		"ServiceUnavailable",
		"InternalServerError",
		"RequestThrottled",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
