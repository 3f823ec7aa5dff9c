package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/researchflow/researchflow/internal/cache"
	"github.com/researchflow/researchflow/types"
)

// AcademicAProvider queries an arXiv-shaped Atom feed API for preprints.
type AcademicAProvider struct {
	baseURL string
	http    *http.Client
	cache   *cache.Manager
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewAcademicAProvider(cfg Config, httpClient *http.Client, c *cache.Manager) *AcademicAProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &AcademicAProvider{
		baseURL: cfg.AcademicA.BaseURL,
		http:    httpClient,
		cache:   c,
		ttl:     cfg.CacheTTL,
		breaker: newCircuitBreaker("academic_a"),
		limiter: newLimiter(),
	}
}

func (p *AcademicAProvider) Name() string { return "academic_a" }

func (p *AcademicAProvider) Search(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
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

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Links     []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Authors []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

func (p *AcademicAProvider) doSearch(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("max_results", fmt.Sprintf("%d", maxResults))

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
		return nil, fmt.Errorf("academic_a provider: unexpected status %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("academic_a provider: decode atom feed: %w", err)
	}

	sources := make([]types.Source, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		link := ""
		for _, l := range e.Links {
			if l.Rel == "alternate" || link == "" {
				link = l.Href
			}
		}
		if link == "" {
			continue
		}
		author := ""
		if len(e.Authors) > 0 {
			author = e.Authors[0].Name
		}
		published, _ := time.Parse(time.RFC3339, e.Published)
		sources = append(sources, types.Source{
			Title:       e.Title,
			URL:         link,
			Snippet:     e.Summary,
			Author:      author,
			PublishedAt: published,
			Provider:    p.Name(),
			Type:        types.SourceAcademic,
		})
		if len(sources) >= maxResults {
			break
		}
	}
	return sources, nil
}
