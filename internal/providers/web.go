package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/researchflow/researchflow/internal/cache"
	"github.com/researchflow/researchflow/types"
)

// WebProvider queries a general web search API (SerpAPI-shaped: a single
// GET with q/api_key/num params returning an "organic_results" array).
type WebProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   *cache.Manager
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewWebProvider(cfg Config, httpClient *http.Client, c *cache.Manager) *WebProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebProvider{
		baseURL: cfg.Web.BaseURL,
		apiKey:  cfg.Web.APIKey,
		http:    httpClient,
		cache:   c,
		ttl:     cfg.CacheTTL,
		breaker: newCircuitBreaker("web"),
		limiter: newLimiter(),
	}
}

func (p *WebProvider) Name() string { return "web" }

func (p *WebProvider) Search(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
	return cachedSearch(ctx, p.cache, p.Name(), query, maxResults, p.ttl, func(ctx context.Context) ([]types.Source, error) {
		out, err := p.breaker.Execute(func() (any, error) {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return p.doSearch(ctx, query, maxResults)
		})
		if err != nil {
			return nil, err
		}
		return out.([]types.Source), nil
	})
}

type webSearchResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (p *WebProvider) doSearch(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("num", fmt.Sprintf("%d", maxResults))
	if p.apiKey != "" {
		q.Set("api_key", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web provider: unexpected status %d", resp.StatusCode)
	}

	var parsed webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("web provider: decode response: %w", err)
	}

	sources := make([]types.Source, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		if r.Link == "" {
			continue
		}
		sources = append(sources, types.Source{
			Title:    r.Title,
			URL:      r.Link,
			Snippet:  r.Snippet,
			Provider: p.Name(),
			Type:     types.SourceWeb,
		})
		if len(sources) >= maxResults {
			break
		}
	}
	return sources, nil
}
