package providers

import "time"

// Config holds per-provider connection settings, loaded from the
// application config and handed to each concrete provider constructor.
type Config struct {
	Web struct {
		BaseURL string `yaml:"base_url" json:"base_url"`
		APIKey  string `yaml:"api_key" json:"api_key"`
	} `yaml:"web" json:"web"`

	News struct {
		BaseURL string `yaml:"base_url" json:"base_url"`
		APIKey  string `yaml:"api_key" json:"api_key"`
	} `yaml:"news" json:"news"`

	AcademicA struct {
		BaseURL string `yaml:"base_url" json:"base_url"` // arXiv-shaped Atom feed
	} `yaml:"academic_a" json:"academic_a"`

	AcademicB struct {
		BaseURL string `yaml:"base_url" json:"base_url"` // PubMed-shaped esearch/efetch
	} `yaml:"academic_b" json:"academic_b"`

	Encyclopedia struct {
		BaseURL string `yaml:"base_url" json:"base_url"` // MediaWiki opensearch API
	} `yaml:"encyclopedia" json:"encyclopedia"`

	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// DefaultConfig returns the public, unauthenticated default endpoints used
// when no API keys are configured.
func DefaultConfig() Config {
	c := Config{CacheTTL: 24 * time.Hour}
	c.Web.BaseURL = "https://serpapi.com/search"
	c.News.BaseURL = "https://newsapi.org/v2/everything"
	c.AcademicA.BaseURL = "https://export.arxiv.org/api/query"
	c.AcademicB.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	c.Encyclopedia.BaseURL = "https://en.wikipedia.org/w/api.php"
	return c
}
