package searchprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TavilyProvider calls the Tavily search API, grounded on the teacher's
// plain net/http REST-client style (pkg/runbook/github.go: context-aware
// request, status-code check, json.Decoder).
type TavilyProvider struct {
	name       string
	apiKey     string
	httpClient *http.Client
	costPer    float64
}

// NewTavilyProvider builds a provider named name against Tavily's API,
// reading apiKey already resolved from the configured env var.
func NewTavilyProvider(name, apiKey string, costPerSearch float64) *TavilyProvider {
	return &TavilyProvider{
		name:       name,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		costPer:    costPerSearch,
	}
}

func (p *TavilyProvider) Name() string           { return p.name }
func (p *TavilyProvider) CostPerSearch() float64 { return p.costPer }

type tavilySearchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilySearchResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// Search issues one blocking call and does not retry; the Search manager
// owns fallback to the next provider.
func (p *TavilyProvider) Search(query string, maxResults int) ([]Result, error) {
	body, err := json.Marshal(tavilySearchRequest{APIKey: p.apiKey, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("encode tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		"https://api.tavily.com/search", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned HTTP %d for query %q", resp.StatusCode, query)
	}

	var parsed tavilySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	out := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, Result{
			Title:         r.Title,
			URL:           r.URL,
			Snippet:       r.Content,
			Score:         r.Score,
			PublishedDate: r.PublishedDate,
		})
	}
	return out, nil
}
