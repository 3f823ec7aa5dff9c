package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/llmclient"
	"github.com/researchflow/researchflow/types"
)

type organizedFinding struct {
	Content           string   `json:"content"`
	Credibility       string   `json:"credibility"`
	RelatedPatterns   []int    `json:"related_patterns,omitempty"`
	SupportingFindings []int   `json:"supporting_findings,omitempty"`
}

type analysisResult struct {
	OrganizedFindings []organizedFinding `json:"organized_findings"`
	Patterns          []string           `json:"patterns"`
	Contradictions    []string           `json:"contradictions"`
	KeyInsights       []string           `json:"key_insights"`
}

// runAnalyze consolidates raw findings, identifies patterns, detects
// contradictions (skipped when fewer than 2 findings exist), and extracts
// key insights, persisting each as its own pipeline artifact.
func (o *Orchestrator) runAnalyze(ctx context.Context, session *types.Session) error {
	findings, err := o.store.GetFindings(ctx, session.ID)
	if err != nil {
		return &StageError{Stage: "analyze", Kind: StoreFail, Err: err}
	}

	result := o.consolidateFindings(ctx, session, findings)

	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactOrganizedFindings, result.OrganizedFindings); err != nil {
		return &StageError{Stage: "analyze", Kind: StoreFail, Err: err}
	}
	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactPatterns, result.Patterns); err != nil {
		return &StageError{Stage: "analyze", Kind: StoreFail, Err: err}
	}
	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactContradictions, result.Contradictions); err != nil {
		return &StageError{Stage: "analyze", Kind: StoreFail, Err: err}
	}
	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactKeyInsights, result.KeyInsights); err != nil {
		return &StageError{Stage: "analyze", Kind: StoreFail, Err: err}
	}
	return nil
}

func (o *Orchestrator) consolidateFindings(ctx context.Context, session *types.Session, findings []types.Finding) analysisResult {
	if o.llm == nil || len(findings) == 0 {
		return emergencyAnalysis(findings)
	}

	prompt := buildAnalysisPrompt(findings)
	reply, err := o.llm.Generate(ctx, prompt, o.models.Analyze, "", 0.4, 2000)
	if err != nil {
		o.logger.Warn("analyze stage LLM call failed, using emergency restructuring", zap.Error(err))
		return emergencyAnalysis(findings)
	}

	raw, ok := llmclient.ExtractJSON(reply)
	if !ok {
		o.logger.Warn("analyze stage reply had no extractable JSON, using emergency restructuring")
		return emergencyAnalysis(findings)
	}

	var result analysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		o.logger.Warn("analyze stage JSON did not match expected shape, using emergency restructuring", zap.Error(err))
		return emergencyAnalysis(findings)
	}

	if len(findings) < 2 {
		result.Contradictions = nil // contradiction detection needs at least 2 findings to compare
	}
	return result
}

func buildAnalysisPrompt(findings []types.Finding) string {
	var b []byte
	b = append(b, []byte("Consolidate these findings into organized findings, patterns, contradictions, and key insights. Reply with a single JSON object: {\"organized_findings\":[...],\"patterns\":[...],\"contradictions\":[...],\"key_insights\":[...]}.\n\n")...)
	for i, f := range findings {
		b = append(b, []byte(fmt.Sprintf("%d. %s\n", i+1, f.Content))...)
	}
	return string(b)
}

// emergencyAnalysis is the last-resort fallback when the LLM call fails or
// its reply can't be parsed: findings are restructured as-is with no
// pattern/contradiction synthesis, so the pipeline still produces usable
// (if shallow) output.
func emergencyAnalysis(findings []types.Finding) analysisResult {
	organized := make([]organizedFinding, len(findings))
	for i, f := range findings {
		organized[i] = organizedFinding{Content: f.Content, Credibility: string(f.Credibility)}
	}
	return analysisResult{OrganizedFindings: organized}
}
