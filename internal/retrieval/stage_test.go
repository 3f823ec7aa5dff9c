package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/providers"
	"github.com/researchflow/researchflow/types"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt, model, systemPrompt string, temperature float64, maxTokens int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type stubProvider struct {
	name    string
	sources []types.Source
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Search(ctx context.Context, query string, maxResults int) ([]types.Source, error) {
	return p.sources, nil
}

func TestDedupByURL(t *testing.T) {
	in := []types.Source{
		{URL: "https://a", Title: "one"},
		{URL: "https://a", Title: "dup"},
		{URL: ""},
		{URL: "https://b"},
	}
	out := dedupByURL(in)
	require.Len(t, out, 2)
	assert.Equal(t, "one", out[0].Title)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, clamp(5, 2, 15))
	assert.Equal(t, 15, clamp(5, 100, 15))
	assert.Equal(t, 10, clamp(5, 10, 15))
}

func TestRun_OutputNeverExceedsMaxSources(t *testing.T) {
	sources := make([]types.Source, 0, 30)
	for i := 0; i < 30; i++ {
		sources = append(sources, types.Source{
			URL:     "https://example.com/" + string(rune('a'+i)),
			Title:   "golang concurrency patterns",
			Snippet: "a deep dive into goroutines and channels",
		})
	}

	stage := NewStage(
		[]providers.Provider{&stubProvider{name: "web", sources: sources}},
		nil, // no LLM: lexical-only path
		"",
		DefaultConfig(),
		zap.NewNop(),
	)

	result, err := stage.Run(context.Background(), "golang concurrency", types.SessionParams{MaxSources: 10}, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Sources), 10)
	for _, src := range result.Sources {
		assert.NotEmpty(t, src.URL)
	}
}

func TestRelevanceFilter_LexicalFallbackOnUnparsableReply(t *testing.T) {
	sources := []types.Source{
		{URL: "https://a", Title: "golang concurrency", Snippet: "goroutines and channels"},
		{URL: "https://b", Title: "unrelated topic", Snippet: "gardening tips"},
	}
	stage := NewStage(nil, &fakeLLM{reply: "not a list of numbers"}, "test-model", DefaultConfig(), zap.NewNop())

	out := stage.relevanceFilter(context.Background(), "golang concurrency", sources, 10)
	assert.NotEmpty(t, out) // falls back to lexical threshold, never empties silently
}

func TestParseFindings_FullFormat(t *testing.T) {
	batch := []types.Source{
		{Title: "Source One", URL: "https://a"},
		{Title: "Source Two", URL: "https://b"},
	}
	reply := "FINDING: Go channels enable CSP-style concurrency.\nSOURCES: 1, 2\nCREDIBILITY: high\n---\nFINDING: Goroutines are cheap to spawn.\nSOURCES: 1\nCREDIBILITY: medium"

	findings := parseFindings(reply, batch)
	require.Len(t, findings, 2)
	assert.Equal(t, types.CredibilityHigh, findings[0].Credibility)
	assert.Len(t, findings[0].SourceRefs, 2)
	assert.Equal(t, types.CredibilityMedium, findings[1].Credibility)
}

func TestMergeNearDuplicates_KeepsAllOnParseFailure(t *testing.T) {
	findings := make([]types.Finding, 12)
	for i := range findings {
		findings[i] = types.Finding{Content: "finding"}
	}
	stage := NewStage(nil, &fakeLLM{reply: "garbage"}, "test-model", DefaultConfig(), zap.NewNop())

	out := stage.mergeNearDuplicates(context.Background(), findings)
	assert.Len(t, out, 12)
}

func TestMergeNearDuplicates_SkipsBelowThreshold(t *testing.T) {
	findings := make([]types.Finding, 5)
	stage := NewStage(nil, &fakeLLM{reply: "1,2"}, "test-model", DefaultConfig(), zap.NewNop())

	out := stage.mergeNearDuplicates(context.Background(), findings)
	assert.Len(t, out, 5) // <= 10 findings: merge step is skipped entirely
}

func TestGenerateQueryVariants_CapsAtConfiguredMax(t *testing.T) {
	reply := strings.Repeat("another phrasing of the query\n", 20)
	stage := NewStage(nil, &fakeLLM{reply: reply}, "test-model", DefaultConfig(), zap.NewNop())

	variants := stage.generateQueryVariants(context.Background(), "golang concurrency", types.SessionParams{})
	assert.LessOrEqual(t, len(variants), DefaultConfig().MaxQueryVariants)
}
