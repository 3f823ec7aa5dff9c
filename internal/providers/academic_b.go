package providers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/researchflow/researchflow/internal/cache"
	"github.com/researchflow/researchflow/types"
)

// AcademicBProvider queries a PubMed-shaped two-step API: esearch resolves
// a query into a list of ids, efetch returns the article XML for those ids.
type AcademicBProvider struct {
	baseURL string
	http    *http.Client
	cache   *cache.Manager
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewAcademicBProvider(cfg Config, httpClient *http.Client, c *cache.Manager) *AcademicBProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &AcademicBProvider{
		baseURL: cfg.AcademicB.BaseURL,
		http:    httpClient,
		cache:   c,
		ttl:     cfg.CacheTTL,
		breaker: newCircuitBreaker("academic_b"),
		limiter: newLimiter(),
	}
}

func (p *AcademicBProvider) Name() string { return "academic_b" }

func (p *AcademicBProvider) Search(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
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

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				Text []string `xml:"AbstractText"`
			} `xml:"Abstract"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PMID string `xml:"MedlineCitation>PMID"`
}

func (p *AcademicBProvider) doSearch(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
	ids, err := p.esearch(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return p.efetch(ctx, ids)
}

func (p *AcademicBProvider) esearch(ctx context.Context, query string, maxResults int) ([]string, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", query)
	q.Set("retmax", fmt.Sprintf("%d", maxResults))
	q.Set("retmode", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/esearch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("academic_b provider: esearch status %d", resp.StatusCode)
	}

	var parsed esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("academic_b provider: decode esearch: %w", err)
	}
	return parsed.ESearchResult.IDList, nil
}

func (p *AcademicBProvider) efetch(ctx context.Context, ids []string) ([]types.Source, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/efetch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("academic_b provider: efetch status %d", resp.StatusCode)
	}

	var set pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("academic_b provider: decode efetch xml: %w", err)
	}

	sources := make([]types.Source, 0, len(set.Articles))
	for _, a := range set.Articles {
		if a.PMID == "" {
			continue
		}
		sources = append(sources, types.Source{
			Title:    a.MedlineCitation.Article.ArticleTitle,
			URL:      "https://pubmed.ncbi.nlm.nih.gov/" + a.PMID + "/",
			Snippet:  strings.Join(a.MedlineCitation.Article.Abstract.Text, " "),
			Provider: p.Name(),
			Type:     types.SourceAcademic,
		})
	}
	return sources, nil
}
