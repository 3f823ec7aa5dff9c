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

// EncyclopediaProvider queries a MediaWiki opensearch API: a single
// opensearch call returns the titles, descriptions and URLs of the results.
type EncyclopediaProvider struct {
	baseURL string
	http    *http.Client
	cache   *cache.Manager
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewEncyclopediaProvider(cfg Config, httpClient *http.Client, c *cache.Manager) *EncyclopediaProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &EncyclopediaProvider{
		baseURL: cfg.Encyclopedia.BaseURL,
		http:    httpClient,
		cache:   c,
		ttl:     cfg.CacheTTL,
		breaker: newCircuitBreaker("encyclopedia"),
		limiter: newLimiter(),
	}
}

func (p *EncyclopediaProvider) Name() string { return "encyclopedia" }

func (p *EncyclopediaProvider) Search(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
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

// opensearchResponse decodes MediaWiki's [query, titles, descriptions, urls] tuple.
type opensearchResponse [4]json.RawMessage

func (p *EncyclopediaProvider) doSearch(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
	q := url.Values{}
	q.Set("action", "opensearch")
	q.Set("search", query)
	q.Set("limit", fmt.Sprintf("%d", maxResults))
	q.Set("format", "json")

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
		return nil, fmt.Errorf("encyclopedia provider: unexpected status %d", resp.StatusCode)
	}

	var parsed opensearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("encyclopedia provider: decode opensearch: %w", err)
	}

	var titles, descriptions, urls []string
	_ = json.Unmarshal(parsed[1], &titles)
	_ = json.Unmarshal(parsed[2], &descriptions)
	_ = json.Unmarshal(parsed[3], &urls)

	n := len(titles)
	if len(urls) < n {
		n = len(urls)
	}
	sources := make([]types.Source, 0, n)
	for i := 0; i < n; i++ {
		if urls[i] == "" {
			continue
		}
		snippet := ""
		if i < len(descriptions) {
			snippet = descriptions[i]
		}
		sources = append(sources, types.Source{
			Title:    titles[i],
			URL:      urls[i],
			Snippet:  snippet,
			Provider: p.Name(),
			Type:     types.SourceEncyclopedia,
		})
	}
	return sources, nil
}
