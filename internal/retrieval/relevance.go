package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/llmclient"
	"github.com/researchflow/researchflow/types"
)

const (
	lexicalTopN       = 150
	academicMultiplier = 1.2
	minFilteredResult  = 10
	refillTopN         = 50
	lexicalMinScore    = 0.1
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"and": true, "or": true, "to": true, "for": true, "is": true, "are": true,
	"with": true, "by": true, "at": true, "from": true, "as": true, "it": true,
	"this": true, "that": true, "be": true, "was": true, "were": true,
}

type scoredSource struct {
	source types.Source
	score  float64
}

// relevanceFilter runs Phase A (lexical keyword-overlap scoring) and then
// Phase B (LLM batch relevance filtering), honoring every fallback named
// in the component design: per-batch lexical fallback on LLM parse
// failure, and a lexical-ranked refill if the combined result is too thin.
func (s *Stage) relevanceFilter(ctx context.Context, query string, sources []types.Source, maxSources int) []types.Source {
	ranked := lexicalRank(query, sources)
	if len(ranked) > lexicalTopN {
		ranked = ranked[:lexicalTopN]
	}

	if s.llm == nil {
		return capSources(toSources(ranked), maxSources)
	}

	kept := s.llmBatchFilter(ctx, query, ranked)

	if len(kept) < minFilteredResult {
		fallback := ranked
		if len(fallback) > refillTopN {
			fallback = fallback[:refillTopN]
		}
		kept = mergeUnique(kept, toSources(fallback))
	}

	return capSources(kept, maxSources)
}

func lexicalRank(query string, sources []types.Source) []scoredSource {
	queryTerms := tokenize(query)

	out := make([]scoredSource, 0, len(sources))
	for _, src := range sources {
		text := tokenize(src.Title + " " + src.Snippet)
		overlap := 0
		for term := range queryTerms {
			if textContains(text, term) {
				overlap++
			}
		}
		score := 0.0
		if len(queryTerms) > 0 {
			score = float64(overlap) / float64(len(queryTerms))
		}
		if src.Type == types.SourceAcademic {
			score *= academicMultiplier
		}
		out = append(out, scoredSource{source: src, score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func tokenize(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if w == "" || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

func textContains(tokens map[string]bool, term string) bool {
	return tokens[term]
}

// llmBatchFilter sends ranked sources to the LLM in fixed-size batches,
// each batch asking for a comma-separated list of relevant indices (or
// NONE). A batch whose reply doesn't parse falls back to keeping every
// source in that batch scoring >= lexicalMinScore, so one bad LLM reply
// never drops an entire batch silently.
func (s *Stage) llmBatchFilter(ctx context.Context, query string, ranked []scoredSource) []types.Source {
	var kept []types.Source

	for start := 0; start < len(ranked); start += s.cfg.RelevanceBatchSize {
		end := start + s.cfg.RelevanceBatchSize
		if end > len(ranked) {
			end = len(ranked)
		}
		batch := ranked[start:end]

		prompt := buildRelevancePrompt(query, batch)
		reply, err := s.llm.Generate(ctx, prompt, s.model, "", 0.0, 200)
		if err != nil {
			s.logger.Warn("relevance filter LLM call failed, falling back to lexical threshold", zap.Error(err))
			kept = append(kept, lexicalFallback(batch)...)
			continue
		}

		indices, ok := llmclient.ExtractIndexList(reply)
		if !ok {
			s.logger.Warn("relevance filter reply unparsable, falling back to lexical threshold",
				zap.String("reply", reply))
			kept = append(kept, lexicalFallback(batch)...)
			continue
		}

		for _, idx := range indices {
			if idx >= 1 && idx <= len(batch) {
				kept = append(kept, batch[idx-1].source)
			}
		}
	}

	return kept
}

func lexicalFallback(batch []scoredSource) []types.Source {
	var out []types.Source
	for _, sc := range batch {
		if sc.score >= lexicalMinScore {
			out = append(out, sc.source)
		}
	}
	return out
}

func buildRelevancePrompt(query string, batch []scoredSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nWhich of these sources are relevant? Reply with a comma-separated list of numbers, or NONE.\n\n", query)
	for i, sc := range batch {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, sc.source.Title, sc.source.Snippet)
	}
	return b.String()
}

func toSources(ranked []scoredSource) []types.Source {
	out := make([]types.Source, len(ranked))
	for i, sc := range ranked {
		out[i] = sc.source
	}
	return out
}

func mergeUnique(a, b []types.Source) []types.Source {
	seen := make(map[string]bool, len(a))
	out := make([]types.Source, 0, len(a)+len(b))
	for _, src := range a {
		if !seen[src.URL] {
			seen[src.URL] = true
			out = append(out, src)
		}
	}
	for _, src := range b {
		if !seen[src.URL] {
			seen[src.URL] = true
			out = append(out, src)
		}
	}
	return out
}

func capSources(sources []types.Source, maxSources int) []types.Source {
	if maxSources > 0 && len(sources) > maxSources {
		return sources[:maxSources]
	}
	return sources
}
