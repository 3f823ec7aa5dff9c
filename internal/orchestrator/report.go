package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/types"
)

// runReport assembles the final report from the best available findings
// (validated, falling back to organized, then raw), computes the quality
// score, formats citations per the session's requested style, and
// persists the Report artifact.
func (o *Orchestrator) runReport(ctx context.Context, session *types.Session) error {
	sources, err := o.store.GetSources(ctx, session.ID)
	if err != nil {
		return &StageError{Stage: "report", Kind: StoreFail, Err: err}
	}

	findings, err := o.loadBestFindings(ctx, session.ID)
	if err != nil {
		return &StageError{Stage: "report", Kind: StageFatal, Err: err}
	}

	var summary types.ConfidenceSummary
	if _, err := o.store.GetPipelineData(ctx, session.ID, types.ArtifactConfidenceSummary, &summary); err != nil {
		return &StageError{Stage: "report", Kind: StoreFail, Err: err}
	}

	verifiedCount := 0
	for _, f := range findings {
		if f.Credibility == types.CredibilityHigh || f.Credibility == types.CredibilityMedium {
			verifiedCount++
		}
	}
	verifiedRatio := 0.0
	if len(findings) > 0 {
		verifiedRatio = float64(verifiedCount) / float64(len(findings))
	}

	report := types.Report{
		SessionID:    session.ID,
		Title:        reportTitle(session.Query),
		Summary:      o.reportSummary(ctx, session, findings),
		Sections:     reportSections(findings),
		Citations:    formatCitations(sources, session.Params.CitationStyle),
		QualityScore: qualityScore(sources, verifiedRatio, summary.Overall),
	}
	report.Markdown = renderMarkdown(report, findings)

	if err := o.store.SaveReport(ctx, &report); err != nil {
		return &StageError{Stage: "report", Kind: StoreFail, Err: err}
	}
	if err := o.store.SetPipelineData(ctx, session.ID, types.ArtifactReport, report); err != nil {
		return &StageError{Stage: "report", Kind: StoreFail, Err: err}
	}
	return nil
}

// loadBestFindings implements the fallback chain: validated findings, then
// organized findings, then raw findings — whichever is the richest
// artifact actually present.
func (o *Orchestrator) loadBestFindings(ctx context.Context, sessionID string) ([]types.Finding, error) {
	var validated []types.Finding
	if ok, err := o.store.GetPipelineData(ctx, sessionID, types.ArtifactValidatedFindings, &validated); err == nil && ok && len(validated) > 0 {
		return validated, nil
	}

	var organized []organizedFinding
	if ok, err := o.store.GetPipelineData(ctx, sessionID, types.ArtifactOrganizedFindings, &organized); err == nil && ok && len(organized) > 0 {
		out := make([]types.Finding, len(organized))
		for i, f := range organized {
			out[i] = types.Finding{Content: f.Content, Credibility: types.CredibilityLabel(f.Credibility)}
		}
		return out, nil
	}

	return o.store.GetFindings(ctx, sessionID)
}

func reportTitle(query string) string {
	return "Research Report: " + query
}

func (o *Orchestrator) reportSummary(ctx context.Context, session *types.Session, findings []types.Finding) string {
	if o.llm == nil || len(findings) == 0 {
		return fmt.Sprintf("This report synthesizes %d findings related to: %s", len(findings), session.Query)
	}

	var b strings.Builder
	b.WriteString("Write a two-paragraph executive summary for a research report on: ")
	b.WriteString(session.Query)
	b.WriteString("\n\nKey findings:\n")
	for _, f := range findings {
		b.WriteString("- " + f.Content + "\n")
	}

	text, err := o.llm.Generate(ctx, b.String(), o.models.Report, "", 0.5, 600)
	if err != nil {
		o.logger.Warn("report summary LLM call failed, using templated summary", zap.Error(err))
		return fmt.Sprintf("This report synthesizes %d findings related to: %s", len(findings), session.Query)
	}
	return text
}

func reportSections(findings []types.Finding) []string {
	sections := []string{"Executive Summary", "Key Findings"}
	if len(findings) > 0 {
		sections = append(sections, "Detailed Analysis")
	}
	return append(sections, "Sources", "Methodology")
}

func formatCitations(sources []types.Source, style string) []string {
	citations := make([]string, 0, len(sources))
	for _, src := range sources {
		citations = append(citations, formatCitation(src, style))
	}
	return citations
}

func formatCitation(src types.Source, style string) string {
	year := ""
	if !src.PublishedAt.IsZero() {
		year = fmt.Sprintf(" (%d)", src.PublishedAt.Year())
	}
	switch style {
	case "MLA":
		return fmt.Sprintf("%q. %s. %s.", src.Title, src.Author, src.URL)
	case "Chicago":
		return fmt.Sprintf("%s. %q%s. %s.", src.Author, src.Title, year, src.URL)
	default: // APA
		return fmt.Sprintf("%s%s. %s. Retrieved from %s", src.Author, year, src.Title, src.URL)
	}
}

// qualityScore is the fixed weighting carried over from the original
// report generator: up to 1.5 points for source breadth (capped at 100
// sources), up to 2.0 for the verified-finding ratio, up to 1.5 for
// overall confidence, clamped to [0, 5].
func qualityScore(sources []types.Source, verifiedRatio, overallConfidence float64) float64 {
	sourceScore := float64(len(sources)) / 100.0
	if sourceScore > 1.0 {
		sourceScore = 1.0
	}
	score := sourceScore*1.5 + verifiedRatio*2.0 + overallConfidence*1.5
	if score > 5.0 {
		score = 5.0
	}
	if score < 0 {
		score = 0
	}
	return roundToOneDecimal(score)
}

func roundToOneDecimal(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func renderMarkdown(report types.Report, findings []types.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", report.Title)
	b.WriteString(report.Summary)
	b.WriteString("\n\n## Key Findings\n\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s\n", f.Content)
	}
	b.WriteString("\n## Sources\n\n")
	for _, c := range report.Citations {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return b.String()
}
