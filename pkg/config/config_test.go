package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

var configEnv = []string{
	"ES_HOST", "ES_PORT", "ES_SCHEME", "ES_INDEX", "ES_USERNAME", "ES_PASSWORD", "ES_API_KEY",
	"ES_AUTHORIZATION", "REPLICATOR_REFRESH", "DLQ_URL", "DLQ_ENDPOINT",
	"REPLICATOR_NON_RETRYABLE_STATUSES", "REPLICATOR_REPORT_BATCH_ITEM_FAILURES",
	"REPLICATOR_ERROR_TOPIC_ARN", "REPLICATOR_ERROR_SUBJECT", "LOG_LEVEL", "LOG_FORMAT",
	"AWS_REGION", FileEnv,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ES_HOST", "search.internal")
	t.Setenv("ES_PORT", "9243")
	t.Setenv("ES_SCHEME", "https")
	t.Setenv("ES_INDEX", "orders")
	t.Setenv("ES_USERNAME", "elastic")
	t.Setenv("ES_PASSWORD", "changeme")
	t.Setenv("DLQ_URL", "https://sqs.us-east-1.amazonaws.com/123/replicator-dlq")
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	setValidEnv(t)
	t.Setenv("REPLICATOR_NON_RETRYABLE_STATUSES", "400,409")
	t.Setenv("REPLICATOR_REPORT_BATCH_ITEM_FAILURES", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "search.internal", cfg.Search.Host)
	require.Equal(t, []int{400, 409}, cfg.Replicator.NonRetryableStatuses)
	require.True(t, cfg.Replicator.ReportBatchItemFailures)
	require.Equal(t, "info", cfg.Log.Level)

	port, err := cfg.Search.PortNumber()
	require.NoError(t, err)
	require.Equal(t, 9243, port)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setValidEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []int{400}, cfg.Replicator.NonRetryableStatuses)
	require.False(t, cfg.Replicator.ReportBatchItemFailures)
}

func TestLoad_ConfiguredStatusesKeepBadRequest(t *testing.T) {
	clearEnv(t)
	setValidEnv(t)
	t.Setenv("REPLICATOR_NON_RETRYABLE_STATUSES", "409")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []int{400, 409}, cfg.Replicator.NonRetryableStatuses)

	policy := cfg.Replicator.Policy()
	require.Equal(t, replicate.NonRetryable, policy.Classify(replicate.OpUpsert, 400))
	require.Equal(t, replicate.NonRetryable, policy.Classify(replicate.OpUpsert, 409))
}

func TestLoad_NamesEveryMissingVariable(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	for _, name := range []string{"ES_HOST", "ES_PORT", "ES_SCHEME", "ES_INDEX", "DLQ_URL", "missing credentials"} {
		require.Contains(t, err.Error(), name)
	}
}

func TestLoad_YAMLFileWithEnvironmentOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "replicator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  host: file-host
  port: "9200"
  scheme: http
  index: orders
  api_key: a2V5
dead_letter:
  url: dynamodb://replicator-dlq
replicator:
  non_retryable_statuses: [400, 422]
`), 0o600))
	t.Setenv(FileEnv, path)
	t.Setenv("ES_HOST", "env-host")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "env-host", cfg.Search.Host)
	require.Equal(t, "a2V5", cfg.Search.APIKey)
	require.Equal(t, "dynamodb://replicator-dlq", cfg.DeadLetter.URL)
	require.Equal(t, []int{400, 422}, cfg.Replicator.NonRetryableStatuses)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.ErrorContains(t, err, "absent.yaml")
}

func TestValidate(t *testing.T) {
	valid := Config{
		Search:     Search{Host: "h", Port: "9200", Scheme: "https", Index: "orders", Authorization: "Bearer x"},
		DeadLetter: DeadLetter{URL: "https://q"},
		Replicator: Replicator{NonRetryableStatuses: []int{400}},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"ES_SCHEME must be http or https": func(c *Config) { c.Search.Scheme = "ftp" },
		"ES_PORT must be 1..65535":        func(c *Config) { c.Search.Port = "70000" },
		"ES_INDEX must be lowercase":      func(c *Config) { c.Search.Index = "Orders" },
		"not a 4xx status":                func(c *Config) { c.Replicator.NonRetryableStatuses = []int{500} },
		"missing credentials":             func(c *Config) { c.Search.Authorization = "" },
	}
	for want, mutate := range cases {
		cfg := valid
		cfg.Replicator.NonRetryableStatuses = append([]int(nil), valid.Replicator.NonRetryableStatuses...)
		mutate(&cfg)
		require.ErrorContains(t, cfg.Validate(), want)
	}

	basicOnlyUser := valid
	basicOnlyUser.Search.Authorization = ""
	basicOnlyUser.Search.Username = "elastic"
	require.ErrorContains(t, basicOnlyUser.Validate(), "missing credentials")
	basicOnlyUser.Search.Password = "p"
	require.NoError(t, basicOnlyUser.Validate())
}
