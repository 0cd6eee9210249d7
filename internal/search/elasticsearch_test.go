package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bidforge/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES serves a canned search response and captures the request body
// for query-shape assertions.
type fakeES struct {
	srv      *httptest.Server
	client   *elasticsearch.Client
	lastPath string
	lastBody map[string]interface{}
	respond  func(w http.ResponseWriter)
}

func newFakeES(t *testing.T) *fakeES {
	t.Helper()
	f := &fakeES{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastPath = r.URL.Path
		f.lastBody = nil
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if f.respond != nil {
			f.respond(w)
			return
		}
		w.Write([]byte(`{"hits":{"hits":[]}}`))
	}))
	t.Cleanup(f.srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{f.srv.URL}})
	require.NoError(t, err)
	f.client = client
	return f
}

func newSearchClient(t *testing.T) (*Client, *fakeES) {
	es := newFakeES(t)
	c := NewClient(es.client, config.ElasticsearchConfig{
		DocumentIndex:  "project-documents",
		KnowledgeIndex: "company-knowledge",
	})
	return c, es
}

func hitsResponse(hits ...map[string]interface{}) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"hits": hits},
		})
	}
}

func TestSearchHybrid(t *testing.T) {
	c, es := newSearchClient(t)
	es.respond = hitsResponse(
		map[string]interface{}{"_score": 2.4, "_source": map[string]interface{}{"content": "foundation plan"}},
		map[string]interface{}{"_score": 1.1, "_source": map[string]interface{}{"content": "site survey"}},
	)

	companyID := "org-1"
	matches, err := c.SearchHybrid(context.Background(), "foundation", []float64{0.1, 0.2}, "proj-1", &companyID, 20, Weights{Vector: 0.7, Text: 0.3})
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "foundation plan", matches[0].Content)
	assert.InDelta(t, 2.4, matches[0].Score, 1e-9)

	assert.Contains(t, es.lastPath, "project-documents")

	boolQuery := es.lastBody["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filters := boolQuery["filter"].([]interface{})
	require.Len(t, filters, 2)
	assert.Equal(t,
		map[string]interface{}{"term": map[string]interface{}{"project_id": "proj-1"}},
		filters[0])
	assert.Equal(t,
		map[string]interface{}{"term": map[string]interface{}{"company_id": "org-1"}},
		filters[1])

	should := boolQuery["should"].([]interface{})
	require.Len(t, should, 2)
	multiMatch := should[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.InDelta(t, 0.3, multiMatch["boost"].(float64), 1e-9)
	scriptScore := should[1].(map[string]interface{})["script_score"].(map[string]interface{})
	assert.InDelta(t, 0.7, scriptScore["boost"].(float64), 1e-9)
}

func TestSearchHybridNoCompanyFilter(t *testing.T) {
	c, es := newSearchClient(t)

	_, err := c.SearchHybrid(context.Background(), "q", []float64{0.1}, "proj-1", nil, 20, Weights{Vector: 0.7, Text: 0.3})
	require.NoError(t, err)

	boolQuery := es.lastBody["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["filter"].([]interface{}), 1)
}

func TestSearchKnowledgeBase(t *testing.T) {
	c, es := newSearchClient(t)
	es.respond = hitsResponse(
		map[string]interface{}{"_score": 1.8, "_source": map[string]interface{}{"content": "past hospital project"}},
	)

	matches, err := c.SearchKnowledgeBase(context.Background(), []float64{0.5}, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "past hospital project", matches[0].Content)
	assert.Contains(t, es.lastPath, "company-knowledge")
}

func TestSearchSkipsEmptyContentHits(t *testing.T) {
	c, es := newSearchClient(t)
	es.respond = hitsResponse(
		map[string]interface{}{"_score": 1.0, "_source": map[string]interface{}{"content": ""}},
		map[string]interface{}{"_score": 0.9, "_source": map[string]interface{}{"content": "usable"}},
	)

	matches, err := c.SearchKnowledgeBase(context.Background(), []float64{0.5}, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "usable", matches[0].Content)
}

func TestSearchErrorStatus(t *testing.T) {
	c, es := newSearchClient(t)
	es.respond = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"search_phase_execution_exception"}}`))
	}

	_, err := c.SearchKnowledgeBase(context.Background(), []float64{0.5}, "org-1", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchFailed)
}
