package orchestrator

import (
	"context"
	"math/rand"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/types"
)

var statisticPattern = regexp.MustCompile(`\d+(\.\d+)?%?`)

const (
	biasSampleSize        = 10
	statsCrossRefMax      = 10
	biasLowThreshold      = 0.3
	biasModerateThreshold = 0.6
)

var reputableDomains = map[string]bool{
	"wikipedia.org": true, "nature.com": true, "sciencedirect.com": true,
	"nih.gov": true, "gov": true, "edu": true,
}

// runVerify cross-references findings against their sources, scores
// per-source credibility, checks statistical claims, samples source bias,
// and computes the weighted overall confidence. A failure here is
// classified StageDegraded: the orchestrator persists a fallback
// confidence summary and continues to Report rather than failing the run.
func (o *Orchestrator) runVerify(ctx context.Context, session *types.Session) error {
	sources, err := o.store.GetSources(ctx, session.ID)
	if err != nil {
		return o.degradeVerify(ctx, session, err)
	}
	findings, err := o.store.GetFindings(ctx, session.ID)
	if err != nil {
		return o.degradeVerify(ctx, session, err)
	}
	var organized []organizedFinding
	if _, err := o.store.GetPipelineData(ctx, session.ID, types.ArtifactOrganizedFindings, &organized); err != nil {
		return o.degradeVerify(ctx, session, err)
	}

	sources = scoreSourceCredibility(sources)

	validated := crossReferenceFindings(findings, sources)
	statsAccuracy := verifyStatistics(findings, sources)
	bias := analyzeBias(sources)

	summary := computeConfidence(validated, sources, statsAccuracy)

	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactValidatedFindings, validated); err != nil {
		return &StageError{Stage: "verify", Kind: StoreFail, Err: err}
	}
	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactBiasAnalysis, bias); err != nil {
		return &StageError{Stage: "verify", Kind: StoreFail, Err: err}
	}
	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactConfidenceSummary, summary); err != nil {
		return &StageError{Stage: "verify", Kind: StoreFail, Err: err}
	}
	return nil
}

// degradeVerify persists the documented fallback confidence summary and
// reports a degraded (non-fatal) stage error.
func (o *Orchestrator) degradeVerify(ctx context.Context, session *types.Session, cause error) error {
	o.logger.Warn("verify stage degraded, persisting fallback confidence summary",
		zap.String("session_id", session.ID), zap.Error(cause))

	fallback := types.ConfidenceSummary{Overall: 0.5, Label: "medium", Note: "Verification failed"}
	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactConfidenceSummary, fallback); err != nil {
		return &StageError{Stage: "verify", Kind: StoreFail, Err: err}
	}
	return &StageError{Stage: "verify", Kind: StageDegraded, Err: cause}
}

// scoreSourceCredibility assigns a simple domain heuristic score when one
// wasn't already set by the provider layer: HTTPS gets a bonus, a small
// allowlist of reputable domains gets a bigger bonus, everything else
// defaults to neutral.
func scoreSourceCredibility(sources []types.Source) []types.Source {
	for i, src := range sources {
		if src.Credibility > 0 {
			continue
		}
		score := 0.5
		if strings.HasPrefix(src.URL, "https://") {
			score += 0.1
		}
		if host := hostOf(src.URL); host != "" {
			for domain := range reputableDomains {
				if strings.HasSuffix(host, domain) {
					score += 0.2
					break
				}
			}
		}
		if score > 1.0 {
			score = 1.0
		}
		sources[i].Credibility = score
	}
	return sources
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// crossReferenceFindings checks each finding against up to
// statsCrossRefMax of its cited sources. A finding with no supporting
// cited source and no credibility label is labelled low credibility; all
// findings are returned.
func crossReferenceFindings(findings []types.Finding, sources []types.Source) []types.Finding {
	byURL := make(map[string]types.Source, len(sources))
	for _, src := range sources {
		byURL[src.URL] = src
	}

	out := make([]types.Finding, len(findings))
	for i, f := range findings {
		out[i] = f
		checked := 0
		supported := false
		for _, ref := range f.SourceRefs {
			if checked >= statsCrossRefMax {
				break
			}
			checked++
			if _, ok := byURL[ref.URL]; ok {
				supported = true
			}
		}
		if !supported && out[i].Credibility == "" {
			out[i].Credibility = types.CredibilityLow
		}
	}
	return out
}

// verifyStatistics estimates the fraction of findings whose numeric claims
// are traceable to at least one cited source, as a proxy for statistical
// accuracy. Findings with no numeric claim don't count against the score.
func verifyStatistics(findings []types.Finding, sources []types.Source) float64 {
	bySourceURL := make(map[string]bool, len(sources))
	for _, src := range sources {
		bySourceURL[src.URL] = true
	}

	withStats := 0
	accurate := 0
	for _, f := range findings {
		if !statisticPattern.MatchString(f.Content) {
			continue
		}
		withStats++
		for _, ref := range f.SourceRefs {
			if bySourceURL[ref.URL] {
				accurate++
				break
			}
		}
	}
	if withStats == 0 {
		return 1.0 // no statistical claims to dispute
	}
	return float64(accurate) / float64(withStats)
}

// analyzeBias samples up to biasSampleSize sources and buckets the average
// bias estimate into low/moderate/high.
func analyzeBias(sources []types.Source) types.BiasAnalysis {
	if len(sources) == 0 {
		return types.BiasAnalysis{Level: "low"}
	}

	sample := sources
	if len(sample) > biasSampleSize {
		sample = sampleSources(sample, biasSampleSize)
	}

	var total float64
	for _, src := range sample {
		total += 1.0 - src.Credibility // lower credibility stands in for higher estimated bias
	}
	avg := total / float64(len(sample))

	level := "high"
	recommendation := "Cross-check findings against additional independent sources."
	switch {
	case avg < biasLowThreshold:
		level = "low"
		recommendation = "Source mix appears balanced."
	case avg < biasModerateThreshold:
		level = "moderate"
		recommendation = "Consider adding sources from differing perspectives."
	}

	return types.BiasAnalysis{SampledSources: len(sample), AverageBias: avg, Level: level, Recommendation: recommendation}
}

func sampleSources(sources []types.Source, n int) []types.Source {
	idx := rand.Perm(len(sources))[:n]
	out := make([]types.Source, n)
	for i, j := range idx {
		out[i] = sources[j]
	}
	return out
}

// computeConfidence implements the fixed weighting: 40% finding
// confidence, 35% source credibility, 25% statistical accuracy.
func computeConfidence(findings []types.Finding, sources []types.Source, statsAccuracy float64) types.ConfidenceSummary {
	findingConfidence := averageFindingConfidence(findings)
	sourceCredibility := averageSourceCredibility(sources)

	overall := findingConfidence*0.40 + sourceCredibility*0.35 + statsAccuracy*0.25

	label := "low"
	switch {
	case overall > 0.75:
		label = "high"
	case overall > 0.5:
		label = "medium"
	}

	return types.ConfidenceSummary{
		Overall:           overall,
		Label:             label,
		FindingConfidence: findingConfidence,
		SourceCredibility: sourceCredibility,
		StatsAccuracy:     statsAccuracy,
	}
}

func averageFindingConfidence(findings []types.Finding) float64 {
	if len(findings) == 0 {
		return 0.5
	}
	var total float64
	for _, f := range findings {
		switch f.Credibility {
		case types.CredibilityHigh:
			total += 1.0
		case types.CredibilityMedium:
			total += 0.6
		case types.CredibilityLow:
			total += 0.3
		default:
			total += 0.5
		}
	}
	return total / float64(len(findings))
}

func averageSourceCredibility(sources []types.Source) float64 {
	if len(sources) == 0 {
		return 0.5
	}
	var total float64
	for _, src := range sources {
		total += src.Credibility
	}
	return total / float64(len(sources))
}
