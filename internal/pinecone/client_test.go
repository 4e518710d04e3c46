package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Api-Key"))

		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.TopK)
		assert.Equal(t, "demo-html", req.Namespace)
		assert.True(t, req.IncludeMetadata)
		require.NotNil(t, req.Filter)

		json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{
				{
					"id":    "chunk-1",
					"score": 0.91,
					"metadata": map[string]any{
						"document": "expense-guide",
						"text":     "Submit expenses within 30 days.",
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{IndexHost: srv.URL, APIKey: "test-key", Namespace: "demo-html"})

	matches, err := client.Query(context.Background(), []float32{0.5}, 3,
		map[string]any{"document": map[string]any{"$in": []string{"expense-guide"}}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "chunk-1", matches[0].ID)
	assert.Equal(t, "expense-guide", matches[0].Metadata["document"])
}

func TestUpsert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vectors/upsert", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Api-Key"))

		var req upsertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "demo-html", req.Namespace)
		require.Len(t, req.Vectors, 2)
		assert.Equal(t, "expense-guide-0000", req.Vectors[0].ID)
		assert.Equal(t, "expense-guide", req.Vectors[0].Metadata["document"])

		json.NewEncoder(w).Encode(map[string]any{"upsertedCount": 2})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{IndexHost: srv.URL, APIKey: "test-key", Namespace: "demo-html"})

	n, err := client.Upsert(context.Background(), []Vector{
		{ID: "expense-guide-0000", Values: []float32{0.1}, Metadata: map[string]any{"document": "expense-guide"}},
		{ID: "expense-guide-0001", Values: []float32{0.2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	// No vectors means no request at all.
	client := NewClient(Config{IndexHost: "http://127.0.0.1:0", APIKey: "k"})
	n, err := client.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{IndexHost: srv.URL, APIKey: "k"})
	_, err := client.Query(context.Background(), []float32{0.5}, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
