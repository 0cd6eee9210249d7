// Package search implements the Elasticsearch-backed retrieval sources:
// hybrid (vector + lexical) document search and the org-scoped company
// knowledge base.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bidforge/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ErrSearchFailed = errors.New("SEARCH_QUERY_FAILED")

// Match is one retrieved fragment with its relevance score.
type Match struct {
	Content string
	Score   float64
}

// Weights controls the hybrid blend between vector similarity and
// lexical matching.
type Weights struct {
	Vector float64
	Text   float64
}

type Client struct {
	es             *elasticsearch.Client
	documentIndex  string
	knowledgeIndex string
}

func NewClient(es *elasticsearch.Client, cfg config.ElasticsearchConfig) *Client {
	return &Client{
		es:             es,
		documentIndex:  cfg.DocumentIndex,
		knowledgeIndex: cfg.KnowledgeIndex,
	}
}

// SearchHybrid combines cosine similarity over the embedding field with
// a lexical multi_match, blended by the given weights, scoped to one
// project (and optionally one company).
func (c *Client) SearchHybrid(ctx context.Context, query string, vector []float64, projectID string, companyID *string, limit int, weights Weights) ([]Match, error) {
	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"project_id": projectID}},
	}
	if companyID != nil && *companyID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"company_id": *companyID},
		})
	}

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
				"should": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":  query,
							"fields": []string{"content^2", "filename"},
							"type":   "best_fields",
							"boost":  weights.Text,
						},
					},
					map[string]interface{}{
						"script_score": map[string]interface{}{
							"query": map[string]interface{}{"exists": map[string]interface{}{"field": "embedding"}},
							"script": map[string]interface{}{
								"source": "cosineSimilarity(params.vector, 'embedding') + 1.0",
								"params": map[string]interface{}{"vector": vector},
							},
							"boost": weights.Vector,
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
	}

	return c.search(ctx, c.documentIndex, queryBody, limit)
}

// SearchKnowledgeBase runs a pure vector search over the company
// knowledge index, scoped to one organization.
func (c *Client) SearchKnowledgeBase(ctx context.Context, vector []float64, companyID string, limit int) ([]Match, error) {
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{
					"bool": map[string]interface{}{
						"filter": []interface{}{
							map[string]interface{}{"term": map[string]interface{}{"company_id": companyID}},
						},
					},
				},
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.vector, 'embedding') + 1.0",
					"params": map[string]interface{}{"vector": vector},
				},
			},
		},
	}

	return c.search(ctx, c.knowledgeIndex, queryBody, limit)
}

func (c *Client) search(ctx context.Context, index string, queryBody map[string]interface{}, limit int) ([]Match, error) {
	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  strings.NewReader(string(body)),
		Size:  &limit,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.Status())
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Content string `json:"content"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrSearchFailed, err)
	}

	matches := make([]Match, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		if hit.Source.Content == "" {
			continue
		}
		matches = append(matches, Match{Content: hit.Source.Content, Score: hit.Score})
	}

	return matches, nil
}
