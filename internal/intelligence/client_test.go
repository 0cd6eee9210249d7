package intelligence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bidforge/internal/common/config"
	"bidforge/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.IntelligenceConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		TimeoutSeconds: 2,
	}, logger.NewTestLogger(t))
}

func TestHasCollection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/collections/org-1", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]bool{"exists": true})
	})

	assert.True(t, c.HasCollection(context.Background(), "org-1"))
}

func TestHasCollectionMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.False(t, c.HasCollection(context.Background(), "org-x"))
}

func TestHasCollectionServiceDownIsFalse(t *testing.T) {
	c := NewClient(config.IntelligenceConfig{
		BaseURL:        "http://127.0.0.1:1",
		TimeoutSeconds: 1,
	}, logger.NewTestLogger(t))
	assert.False(t, c.HasCollection(context.Background(), "org-1"))
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "steel framing", req["query"])
		assert.Equal(t, "proj-1", req["projectId"])
		assert.Equal(t, "org-1", req["orgId"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"localResults":    []map[string]interface{}{{"content": "local doc", "score": 0.8}},
			"externalResults": []map[string]interface{}{{"content": "external doc", "score": 0.6}},
			"combined": []map[string]interface{}{
				{"content": "local doc", "score": 0.8},
				{"content": "external doc", "score": 0.6},
			},
		})
	})

	result, err := c.Search(context.Background(), "steel framing", "proj-1", "org-1")
	require.NoError(t, err)
	require.Len(t, result.Combined, 2)
	assert.Equal(t, "local doc", result.Combined[0].Content)
	assert.InDelta(t, 0.8, result.Combined[0].Score, 1e-9)
	assert.Len(t, result.LocalResults, 1)
	assert.Len(t, result.ExternalResults, 1)
}

func TestSearchErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection rebuilding", http.StatusServiceUnavailable)
	})

	_, err := c.Search(context.Background(), "q", "proj-1", "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
