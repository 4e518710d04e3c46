// Package pinecone queries the hosted vector index. The index itself
// is an opaque remote service; this client only covers the query path
// the chat pipeline uses.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config for the index client
type Config struct {
	IndexHost string // https://<index>-<project>.svc.<region>.pinecone.io
	APIKey    string
	Namespace string
}

// Client queries one Pinecone index
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Match is one retrieved vector with its metadata
type Match struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Vector is one embedding to store in the index
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewClient creates a new index client
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type queryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Namespace       string         `json:"namespace,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

// Query returns the topK nearest vectors, optionally restricted by a
// metadata filter (Pinecone filter expression, e.g. {"document":
// {"$in": [...]}}).
func (c *Client) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Match, error) {
	req := queryRequest{
		Vector:          vector,
		TopK:            topK,
		Namespace:       c.cfg.Namespace,
		Filter:          filter,
		IncludeMetadata: true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.IndexHost+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send query: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index error: %s (status %d)", string(respData), resp.StatusCode)
	}

	var parsed queryResponse
	if err := json.Unmarshal(respData, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return parsed.Matches, nil
}

type upsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// Upsert writes vectors into the namespace, replacing any existing
// entries with the same IDs, and returns the count the index accepted.
func (c *Client) Upsert(ctx context.Context, vectors []Vector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}

	req := upsertRequest{Vectors: vectors, Namespace: c.cfg.Namespace}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal upsert: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.IndexHost+"/vectors/upsert", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("failed to send upsert: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("index error: %s (status %d)", string(respData), resp.StatusCode)
	}

	var parsed upsertResponse
	if err := json.Unmarshal(respData, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	return parsed.UpsertedCount, nil
}
