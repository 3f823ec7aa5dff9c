package providers

import (
	"net/http"

	"github.com/researchflow/researchflow/internal/cache"
)

// All constructs the full set of configured providers in a fixed order
// (web, news, academic_a, academic_b, encyclopedia), sharing one HTTP
// client and one response cache across all five.
func All(cfg Config, httpClient *http.Client, c *cache.Manager) []Provider {
	return []Provider{
		NewWebProvider(cfg, httpClient, c),
		NewNewsProvider(cfg, httpClient, c),
		NewAcademicAProvider(cfg, httpClient, c),
		NewAcademicBProvider(cfg, httpClient, c),
		NewEncyclopediaProvider(cfg, httpClient, c),
	}
}

// Filter narrows providers to those whose Name() appears in preferences.
// An empty preferences list means "use all configured providers."
func Filter(all []Provider, preferences []string) []Provider {
	if len(preferences) == 0 {
		return all
	}
	want := make(map[string]bool, len(preferences))
	for _, p := range preferences {
		want[p] = true
	}
	out := make([]Provider, 0, len(all))
	for _, p := range all {
		if want[p.Name()] {
			out = append(out, p)
		}
	}
	return out
}
