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

// NewsProvider queries a news search API (NewsAPI-shaped), restricted to a
// 30-day freshness window so stale articles don't crowd out current
// coverage.
type NewsProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   *cache.Manager
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	now     func() time.Time
}

func NewNewsProvider(cfg Config, httpClient *http.Client, c *cache.Manager) *NewsProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &NewsProvider{
		baseURL: cfg.News.BaseURL,
		apiKey:  cfg.News.APIKey,
		http:    httpClient,
		cache:   c,
		ttl:     cfg.CacheTTL,
		breaker: newCircuitBreaker("news"),
		limiter: newLimiter(),
		now:     time.Now,
	}
}

func (p *NewsProvider) Name() string { return "news" }

func (p *NewsProvider) Search(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
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

type newsSearchResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Author      string `json:"author"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (p *NewsProvider) doSearch(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
	from := p.now().AddDate(0, 0, -30).Format("2006-01-02")

	q := url.Values{}
	q.Set("q", query)
	q.Set("from", from)
	q.Set("pageSize", fmt.Sprintf("%d", maxResults))
	q.Set("sortBy", "relevancy")
	if p.apiKey != "" {
		q.Set("apiKey", p.apiKey)
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
		return nil, fmt.Errorf("news provider: unexpected status %d", resp.StatusCode)
	}

	var parsed newsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("news provider: decode response: %w", err)
	}

	sources := make([]types.Source, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		if a.URL == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		sources = append(sources, types.Source{
			Title:       a.Title,
			URL:         a.URL,
			Snippet:     a.Description,
			Author:      a.Author,
			PublishedAt: published,
			Provider:    p.Name(),
			Type:        types.SourceNews,
		})
		if len(sources) >= maxResults {
			break
		}
	}
	return sources, nil
}
