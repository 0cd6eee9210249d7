// Package intelligence is a thin HTTP client for the external
// document-intelligence service consulted as a retrieval source. The
// service maintains per-organization document collections; an
// organization without a collection simply has nothing to search.
package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bidforge/internal/common/config"
	"bidforge/internal/common/logger"
	"bidforge/internal/retrieval"
	"bidforge/internal/search"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(cfg config.IntelligenceConfig, log logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: log.WithFields(map[string]interface{}{"component": "intelligence"}),
	}
}

type collectionResponse struct {
	Exists bool `json:"exists"`
}

type searchRequest struct {
	Query     string `json:"query"`
	ProjectID string `json:"projectId"`
	OrgID     string `json:"orgId"`
}

type matchPayload struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	LocalResults    []matchPayload `json:"localResults"`
	ExternalResults []matchPayload `json:"externalResults"`
	Combined        []matchPayload `json:"combined"`
}

// HasCollection reports whether the organization has a collection. Any
// transport failure counts as "no collection": the retrieval source is
// optional and must not block the request.
func (c *Client) HasCollection(ctx context.Context, companyID string) bool {
	url := fmt.Sprintf("%s/api/collections/%s", c.baseURL, companyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("collection lookup failed", map[string]interface{}{
			"companyId": companyID,
			"error":     err.Error(),
		})
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false
	}
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var payload collectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false
	}
	return payload.Exists
}

// Search runs the combined local+external search for an organization.
func (c *Client) Search(ctx context.Context, query, projectID, companyID string) (*retrieval.IntelligenceResult, error) {
	url := fmt.Sprintf("%s/api/search", c.baseURL)

	jsonData, err := json.Marshal(searchRequest{
		Query:     query,
		ProjectID: projectID,
		OrgID:     companyID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("intelligence search failed (status %d): %s", resp.StatusCode, string(body))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &retrieval.IntelligenceResult{
		LocalResults:    toMatches(payload.LocalResults),
		ExternalResults: toMatches(payload.ExternalResults),
		Combined:        toMatches(payload.Combined),
	}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func toMatches(payloads []matchPayload) []search.Match {
	matches := make([]search.Match, 0, len(payloads))
	for _, p := range payloads {
		matches = append(matches, search.Match{Content: p.Content, Score: p.Score})
	}
	return matches
}
