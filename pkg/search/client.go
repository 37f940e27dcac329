package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
	"github.com/theory-cloud/searchreplicator/pkg/replicate"
	"github.com/theory-cloud/searchreplicator/pkg/sanitization"
)

const maxErrorBody = 4 * 1024

type Config struct {
	Scheme string
	Host   string
	Port   int

	// One credential style is used, in this order: Authorization, APIKey, basic auth.
	Username      string
	Password      string
	APIKey        string
	Authorization string

	// Refresh is passed through as the bulk "refresh" parameter when set.
	Refresh string

	Transport http.RoundTripper
	Logger    observability.StructuredLogger
}

// Address renders scheme://host:port.
func (c Config) Address() string {
	u := url.URL{
		Scheme: strings.ToLower(strings.TrimSpace(c.Scheme)),
		Host:   strings.TrimSpace(c.Host) + ":" + strconv.Itoa(c.Port),
	}
	return u.String()
}

// Client submits write operations through the Elasticsearch _bulk API.
type Client struct {
	es      *elasticsearch.Client
	refresh string
	logger  observability.StructuredLogger
}

var _ replicate.BulkIndexer = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("search: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.New("search: port out of range")
	}

	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Address()},
		Transport: cfg.Transport,
		// Whole-batch redelivery is the retry mechanism.
		DisableRetry: true,
	}
	switch {
	case strings.TrimSpace(cfg.Authorization) != "":
		esCfg.Header = http.Header{"Authorization": []string{strings.TrimSpace(cfg.Authorization)}}
	case strings.TrimSpace(cfg.APIKey) != "":
		esCfg.APIKey = strings.TrimSpace(cfg.APIKey)
	default:
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return &Client{
		es:      es,
		refresh: strings.TrimSpace(cfg.Refresh),
		logger:  observability.OrNoOp(cfg.Logger),
	}, nil
}

// Bulk sends ops as one _bulk request and returns the per-item results in request
// order. Any failure of the request as a whole is a *replicate.TransportError.
func (c *Client) Bulk(ctx context.Context, index string, ops []replicate.WriteOperation) ([]replicate.ItemResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	transportErr := func(status int, err error) error {
		return &replicate.TransportError{Index: index, Operations: len(ops), Status: status, Err: err}
	}

	body, err := EncodeBulk(index, ops)
	if err != nil {
		return nil, transportErr(0, err)
	}

	opts := []func(*esapi.BulkRequest){c.es.Bulk.WithContext(ctx)}
	if c.refresh != "" {
		opts = append(opts, c.es.Bulk.WithRefresh(c.refresh))
	}

	c.logger.Debug("submitting bulk request", map[string]any{
		"index":      index,
		"operations": len(ops),
		"bytes":      len(body),
	})

	res, err := c.es.Bulk(bytes.NewReader(body), opts...)
	if err != nil {
		return nil, transportErr(0, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, transportErr(res.StatusCode, fmt.Errorf("search: %s", sanitization.SanitizeLogString(string(msg))))
	}

	items, err := DecodeBulkResponse(res.Body)
	if err != nil {
		return nil, transportErr(res.StatusCode, err)
	}
	return items, nil
}
