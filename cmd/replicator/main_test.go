package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/searchreplicator/pkg/config"
)

func validConfig() config.Config {
	return config.Config{
		Search: config.Search{
			Host:     "localhost",
			Port:     "9200",
			Scheme:   "http",
			Index:    "orders",
			Username: "elastic",
			Password: "changeme",
		},
		DeadLetter: config.DeadLetter{
			URL:      "http://localhost:4566/000000000000/replicator-dlq",
			Endpoint: "http://localhost:4566",
		},
		Replicator: config.Replicator{NonRetryableStatuses: []int{400}},
		Log:        config.Log{Level: "debug", Format: "json"},
		AWS:        config.AWS{Region: "us-east-1"},
	}
}

func TestBuildApp(t *testing.T) {
	a, err := buildApp(context.Background(), validConfig())
	require.NoError(t, err)
	require.NotNil(t, a.handler)
	require.NoError(t, a.Close())
}

func TestBuildApp_KafkaDeadLetters(t *testing.T) {
	cfg := validConfig()
	cfg.DeadLetter.URL = "kafka://localhost:9092/replicator-dlq"

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestBuildApp_Failures(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	_, err := buildApp(context.Background(), cfg)
	require.ErrorContains(t, err, "logger")

	cfg = validConfig()
	cfg.DeadLetter.URL = "ftp://nowhere"
	_, err = buildApp(context.Background(), cfg)
	require.Error(t, err)
}

func TestSetup_FailsFastOnMissingConfig(t *testing.T) {
	for _, key := range []string{"ES_HOST", "ES_PORT", "ES_SCHEME", "ES_INDEX", "DLQ_URL", "ES_USERNAME", "ES_PASSWORD", "ES_API_KEY", "ES_AUTHORIZATION", config.FileEnv} {
		t.Setenv(key, "")
	}

	var stderr bytes.Buffer
	a, code := setup(context.Background(), &stderr)
	require.Nil(t, a)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "ES_HOST")
	require.Contains(t, stderr.String(), "DLQ_URL")
}
