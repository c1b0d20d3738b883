package enrichment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

const defaultSerperURL = "https://google.serper.dev/search"

// OrganicResult is one entry of a Serper search response.
type OrganicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchResult holds the usable part of one Serper response.
type SearchResult struct {
	Query   string
	Organic []OrganicResult
}

// SerperClient queries the Serper Google Search API.
type SerperClient struct {
	apiKey string
	url    string
	client *http.Client
}

func NewSerperClient(apiKey string) *SerperClient {
	return &SerperClient{
		apiKey: apiKey,
		url:    defaultSerperURL,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type serperRequest struct {
	Q           string `json:"q"`
	GL          string `json:"gl"`
	Autocorrect bool   `json:"autocorrect"`
	Num         int    `json:"num"`
}

type serperResponse struct {
	SearchParameters struct {
		Q string `json:"q"`
	} `json:"searchParameters"`
	Organic []OrganicResult `json:"organic"`
}

// Search runs one query. A non-200 response is an error; the caller decides
// whether a failed query sinks the whole company or just thins the summary.
func (s *SerperClient) Search(ctx context.Context, query string) (SearchResult, error) {
	body, err := sonic.Marshal(serperRequest{Q: query, GL: "us", Num: 10})
	if err != nil {
		return SearchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SearchResult{}, err
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SearchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return SearchResult{}, fmt.Errorf("serper returned status %d for query %q", resp.StatusCode, query)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SearchResult{}, err
	}
	var parsed serperResponse
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return SearchResult{}, fmt.Errorf("decode serper response: %w", err)
	}
	result := SearchResult{Query: parsed.SearchParameters.Q, Organic: parsed.Organic}
	if result.Query == "" {
		result.Query = query
	}
	return result, nil
}
