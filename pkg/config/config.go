package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

// Config is the replicator's startup configuration. Every required value must be
// present before the first batch is accepted.
type Config struct {
	Search     Search     `yaml:"search"`
	DeadLetter DeadLetter `yaml:"dead_letter"`
	Replicator Replicator `yaml:"replicator"`
	Log        Log        `yaml:"log"`
	AWS        AWS        `yaml:"aws"`
}

type Search struct {
	Host   string `yaml:"host" env:"ES_HOST"`
	Port   string `yaml:"port" env:"ES_PORT"`
	Scheme string `yaml:"scheme" env:"ES_SCHEME"`
	Index  string `yaml:"index" env:"ES_INDEX"`

	Username      string `yaml:"username" env:"ES_USERNAME"`
	Password      string `yaml:"password" env:"ES_PASSWORD"`
	APIKey        string `yaml:"api_key" env:"ES_API_KEY"`
	Authorization string `yaml:"authorization" env:"ES_AUTHORIZATION"`

	Refresh string `yaml:"refresh" env:"REPLICATOR_REFRESH"`
}

type DeadLetter struct {
	URL      string `yaml:"url" env:"DLQ_URL"`
	Endpoint string `yaml:"endpoint" env:"DLQ_ENDPOINT"`
}

type Replicator struct {
	NonRetryableStatuses    []int `yaml:"non_retryable_statuses" env:"REPLICATOR_NON_RETRYABLE_STATUSES" env-default:"400"`
	ReportBatchItemFailures bool  `yaml:"report_batch_item_failures" env:"REPLICATOR_REPORT_BATCH_ITEM_FAILURES" env-default:"false"`

	ErrorTopicARN string `yaml:"error_topic_arn" env:"REPLICATOR_ERROR_TOPIC_ARN"`
	ErrorSubject  string `yaml:"error_subject" env:"REPLICATOR_ERROR_SUBJECT"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

type AWS struct {
	Region string `yaml:"region" env:"AWS_REGION"`
}

// FileEnv names an optional YAML file read before the environment.
const FileEnv = "REPLICATOR_CONFIG_FILE"

// Load reads the configuration from the environment, layered over the YAML file
// named by REPLICATOR_CONFIG_FILE when set, and validates it.
func Load() (Config, error) {
	var cfg Config

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		// ReadConfig also applies environment overrides.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	// Configured statuses extend the bad request status; they never replace it.
	cfg.Replicator.NonRetryableStatuses = cfg.Replicator.Policy().NonRetryableStatuses()
	return cfg, nil
}

// Validate reports every missing or invalid value in one error.
func (c Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	require("ES_HOST", c.Search.Host)
	require("ES_PORT", c.Search.Port)
	require("ES_SCHEME", c.Search.Scheme)
	require("ES_INDEX", c.Search.Index)
	require("DLQ_URL", c.DeadLetter.URL)

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("config: missing required variables: %s", strings.Join(missing, ", ")))
	}
	if !c.Search.hasCredentials() {
		errs = append(errs, errors.New("config: missing credentials: set ES_USERNAME and ES_PASSWORD, ES_API_KEY, or ES_AUTHORIZATION"))
	}

	if scheme := strings.ToLower(strings.TrimSpace(c.Search.Scheme)); scheme != "" && scheme != "http" && scheme != "https" {
		errs = append(errs, fmt.Errorf("config: ES_SCHEME must be http or https, got %q", c.Search.Scheme))
	}
	if strings.TrimSpace(c.Search.Port) != "" {
		if _, err := c.Search.PortNumber(); err != nil {
			errs = append(errs, err)
		}
	}
	if index := strings.TrimSpace(c.Search.Index); index != "" && index != strings.ToLower(index) {
		errs = append(errs, fmt.Errorf("config: ES_INDEX must be lowercase, got %q", index))
	}
	for _, status := range c.Replicator.NonRetryableStatuses {
		if status < 400 || status > 499 {
			errs = append(errs, fmt.Errorf("config: non-retryable status %d is not a 4xx status", status))
		}
	}

	return errors.Join(errs...)
}

// Policy is the outcome classification policy for the configured statuses.
func (r Replicator) Policy() replicate.Policy {
	return replicate.NewPolicy(r.NonRetryableStatuses...)
}

func (s Search) hasCredentials() bool {
	if strings.TrimSpace(s.Authorization) != "" || strings.TrimSpace(s.APIKey) != "" {
		return true
	}
	return strings.TrimSpace(s.Username) != "" && s.Password != ""
}

// PortNumber parses Port.
func (s Search) PortNumber() (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s.Port))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("config: ES_PORT must be 1..65535, got %q", s.Port)
	}
	return port, nil
}
