// Package search provides the document-search capability consumed by the
// answer pipeline. The index itself is an external service reached over
// HTTP; ranking internals are out of scope here.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agile-ai/ragchat-platform/internal/model"
)

// Service is the document-search capability: ranked document and image
// retrieval for a query string and/or embedding vector.
type Service interface {
	QueryDocuments(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.RetrievedDocument, error)
	QueryImages(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.SupportingImage, error)
}

// CategoryFilter builds the exclusion filter expression for a category,
// or "" when no category is excluded.
func CategoryFilter(excludeCategory string) string {
	if excludeCategory == "" {
		return ""
	}
	return fmt.Sprintf("category ne '%s'", excludeCategory)
}

// Client is an HTTP client for the search index.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a search client for the given index endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type queryRequest struct {
	Search           string    `json:"search,omitempty"`
	Vector           []float32 `json:"vector,omitempty"`
	Top              int       `json:"top"`
	Filter           string    `json:"filter,omitempty"`
	SemanticCaptions bool      `json:"semanticCaptions,omitempty"`
	SemanticRanker   bool      `json:"semanticRanker,omitempty"`
}

type documentResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type imageResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// QueryDocuments returns ranked documents for the query. An empty result
// set is valid, not an error.
func (c *Client) QueryDocuments(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.RetrievedDocument, error) {
	req := queryRequest{
		Search: query,
		Vector: embedding,
		Top:    overrides.TopOrDefault(),
	}
	if overrides != nil {
		req.Filter = CategoryFilter(overrides.ExcludeCategory)
		req.SemanticCaptions = overrides.SemanticCaptions
		req.SemanticRanker = overrides.SemanticRanker
	}

	var results []documentResult
	if err := c.post(ctx, "/documents/search", req, &results); err != nil {
		return nil, err
	}

	docs := make([]model.RetrievedDocument, len(results))
	for i, r := range results {
		docs[i] = model.RetrievedDocument{Title: r.Title, Content: r.Content, Score: r.Score}
	}
	return docs, nil
}

// QueryImages returns supporting images for the query from the image index.
func (c *Client) QueryImages(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.SupportingImage, error) {
	req := queryRequest{
		Search: query,
		Vector: embedding,
		Top:    overrides.TopOrDefault(),
	}

	var results []imageResult
	if err := c.post(ctx, "/images/search", req, &results); err != nil {
		return nil, err
	}

	images := make([]model.SupportingImage, len(results))
	for i, r := range results {
		images[i] = model.SupportingImage{Title: r.Title, URL: r.URL}
	}
	return images, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search index returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode search response: %w", err)
	}
	return nil
}
