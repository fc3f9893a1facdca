// internal/common/database/elasticsearch.go
package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"portal-workers/internal/common/config"
	"portal-workers/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient wraps the Elasticsearch client
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

// NewElasticsearch creates a new Elasticsearch client
func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	addresses := cfg.Addresses
	if len(addresses) == 0 && cfg.GetURL() != "" {
		addresses = []string{cfg.GetURL()}
	}
	esCfg := elasticsearch.Config{
		Addresses: addresses,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, errors.NewElasticsearchConnectionFailedError(fmt.Errorf("failed to create elasticsearch client: %w", err))
	}

	return &ElasticsearchClient{Client: es}, nil
}

// Ping tests the Elasticsearch connection
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := c.Client.Ping(
		c.Client.Ping.WithContext(ctx),
	)
	if err != nil {
		return errors.NewElasticsearchConnectionFailedError(fmt.Errorf("elasticsearch ping failed: %w", err))
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewElasticsearchConnectionFailedError(fmt.Errorf("elasticsearch ping error: %s", res.Status()))
	}

	return nil
}

// IndexResult is the part of the index API response callers care about.
type IndexResult struct {
	Result  string `json:"result"`
	Version int64  `json:"_version"`
}

// IndexDocument creates or replaces the document id in index. Failures come
// back as INDEX_FAILED; 4xx responses other than 429 are not retryable.
func (c *ElasticsearchClient) IndexDocument(ctx context.Context, index, id string, doc interface{}) (*IndexResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewIndexFailedError(index, fmt.Errorf("encode document: %w", err))
	}

	res, err := c.Client.Index(
		index,
		bytes.NewReader(body),
		c.Client.Index.WithDocumentID(id),
		c.Client.Index.WithContext(ctx),
	)
	if err != nil {
		return nil, errors.NewIndexFailedError(index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		stdErr := errors.NewIndexFailedError(index, fmt.Errorf("index %s: %s: %s", id, res.Status(), raw))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != 429 {
			stdErr.Retryable = false
		}
		return nil, stdErr.WithMetadata("httpStatus", res.StatusCode)
	}

	var out IndexResult
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, errors.NewIndexFailedError(index, fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}
