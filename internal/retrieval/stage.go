// Package retrieval implements the Retrieve stage: query variant
// generation, parallel provider fan-out, dedup, two-phase relevance
// filtering, and bounded finding extraction.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/llmclient"
	"github.com/researchflow/researchflow/internal/providers"
	"github.com/researchflow/researchflow/types"
)

// Config bounds the stage's query fan-out and extraction work.
type Config struct {
	MaxQueryVariants     int // standard 8, deep 12
	MaxQueryVariantsDeep int
	MaxExtractionBatch   int // 45 standard / 60 deep, in source count
	MaxExtractionBatchDeep int
	RelevanceBatchSize   int // LLM batch size for phase B, 20
	ExtractionBatchSize  int // sources per extraction batch, 15
}

// DefaultConfig matches the bounds carried over from the original
// research assistant's researcher agent.
func DefaultConfig() Config {
	return Config{
		MaxQueryVariants:       8,
		MaxQueryVariantsDeep:   12,
		MaxExtractionBatch:     45,
		MaxExtractionBatchDeep: 60,
		RelevanceBatchSize:     20,
		ExtractionBatchSize:    15,
	}
}

// Result is everything the Retrieve stage hands off to the store.
type Result struct {
	Sources        []types.Source
	Findings       []types.Finding
	ProviderCounts map[string]int
}

// Stage runs one Retrieve invocation.
type Stage struct {
	providers []providers.Provider
	llm       llmclient.Client
	model     string
	cfg       Config
	logger    *zap.Logger
}

// NewStage builds a Retrieve stage over the given provider set.
func NewStage(providerList []providers.Provider, llm llmclient.Client, model string, cfg Config, logger *zap.Logger) *Stage {
	return &Stage{
		providers: providerList,
		llm:       llm,
		model:     model,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "retrieval")),
	}
}

// Run executes the full Retrieve pipeline for one session.
func (s *Stage) Run(ctx context.Context, query string, params types.SessionParams, onProviderDone providers.FanOutCallback) (Result, error) {
	queries := s.generateQueryVariants(ctx, query, params)

	maxSources := params.MaxSources
	if maxSources <= 0 {
		maxSources = 50
	}
	perProviderCap := clamp(5, maxSources/(len(queries)*3), 15)
	if params.Deep {
		perProviderCap = clamp(5, perProviderCap*2, 25)
	}

	activeProviders := providers.Filter(s.providers, params.ProviderPreferences)

	var accumulated []types.Source
	providerCounts := make(map[string]int)
	for _, variant := range queries {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		byProvider := providers.FanOut(ctx, activeProviders, variant, perProviderCap, onProviderDone, s.logger)
		for name, sources := range byProvider {
			providerCounts[name] += len(sources)
			accumulated = append(accumulated, sources...)
		}
		if len(accumulated) > 2*maxSources {
			break
		}
	}

	deduped := dedupByURL(accumulated)

	filtered := s.relevanceFilter(ctx, query, deduped, maxSources)

	extractBudget := s.cfg.MaxExtractionBatch
	if params.Deep {
		extractBudget = s.cfg.MaxExtractionBatchDeep
	}
	if len(filtered) > extractBudget {
		filtered = filtered[:extractBudget]
	}

	findings := s.extractFindings(ctx, filtered)
	findings = s.mergeNearDuplicates(ctx, findings)

	return Result{Sources: filtered, Findings: findings, ProviderCounts: providerCounts}, nil
}

// generateQueryVariants builds the original query, one per focus area, and
// up to MaxQueryVariants (or the deep cap) LLM-suggested phrasings.
func (s *Stage) generateQueryVariants(ctx context.Context, query string, params types.SessionParams) []string {
	variants := []string{query}
	for _, focus := range params.FocusAreas {
		variants = append(variants, fmt.Sprintf("%s %s", query, focus))
	}

	cap := s.cfg.MaxQueryVariants
	if params.Deep {
		cap = s.cfg.MaxQueryVariantsDeep
	}

	if s.llm != nil && len(variants) < cap {
		prompt := fmt.Sprintf(
			"Suggest up to %d alternative search query phrasings for researching: %q\nReply with one phrasing per line, no numbering.",
			cap-len(variants), query)
		text, err := s.llm.Generate(ctx, prompt, s.model, "", 0.7, 300)
		if err != nil {
			s.logger.Warn("query variant generation failed, continuing with base variants", zap.Error(err))
		} else {
			for _, line := range strings.Split(text, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				variants = append(variants, line)
				if len(variants) >= cap {
					break
				}
			}
		}
	}

	if len(variants) > cap {
		variants = variants[:cap]
	}
	return variants
}

func dedupByURL(sources []types.Source) []types.Source {
	seen := make(map[string]bool, len(sources))
	out := make([]types.Source, 0, len(sources))
	for _, src := range sources {
		if src.URL == "" || seen[src.URL] {
			continue
		}
		seen[src.URL] = true
		out = append(out, src)
	}
	return out
}

func clamp(min, v, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
