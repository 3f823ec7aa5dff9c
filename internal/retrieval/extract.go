package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/llmclient"
	"github.com/researchflow/researchflow/types"
)

// extractFindings runs bounded LLM extraction over filtered sources in
// fixed-size batches, parsing the FINDING:/SOURCES:/CREDIBILITY:/--- line
// format. A batch that fails to call or parse contributes zero findings
// rather than aborting the whole extraction.
func (s *Stage) extractFindings(ctx context.Context, sources []types.Source) []types.Finding {
	if s.llm == nil || len(sources) == 0 {
		return nil
	}

	var findings []types.Finding
	for start := 0; start < len(sources); start += s.cfg.ExtractionBatchSize {
		end := start + s.cfg.ExtractionBatchSize
		if end > len(sources) {
			end = len(sources)
		}
		batch := sources[start:end]

		prompt := buildExtractionPrompt(batch)
		reply, err := s.llm.Generate(ctx, prompt, s.model, "", 0.3, 1200)
		if err != nil {
			s.logger.Warn("finding extraction LLM call failed, skipping batch", zap.Error(err))
			continue
		}

		findings = append(findings, parseFindings(reply, batch)...)
	}
	return findings
}

func buildExtractionPrompt(batch []types.Source) string {
	var b strings.Builder
	b.WriteString("Extract 3-7 distinct findings from these sources. For each finding, reply in this exact format, separated by lines containing only ---:\n\n")
	b.WriteString("FINDING: <one sentence>\nSOURCES: <comma-separated source numbers>\nCREDIBILITY: <high|medium|low>\n---\n\n")
	for i, src := range batch {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, src.Title, src.Snippet)
	}
	return b.String()
}

// parseFindings implements the FINDING/SOURCES/CREDIBILITY/--- line format.
func parseFindings(reply string, batch []types.Source) []types.Finding {
	var out []types.Finding

	blocks := strings.Split(reply, "---")
	for _, block := range blocks {
		var content, credRaw string
		var refs []types.SourceRef

		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "FINDING:"):
				content = strings.TrimSpace(strings.TrimPrefix(line, "FINDING:"))
			case strings.HasPrefix(line, "SOURCES:"):
				refs = resolveSourceRefs(strings.TrimPrefix(line, "SOURCES:"), batch)
			case strings.HasPrefix(line, "CREDIBILITY:"):
				credRaw = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "CREDIBILITY:")))
			}
		}

		if content == "" {
			continue
		}
		out = append(out, types.Finding{
			Content:     content,
			Credibility: parseCredibility(credRaw),
			SourceRefs:  refs,
			Agent:       "retrieve",
		})
	}
	return out
}

func resolveSourceRefs(indexList string, batch []types.Source) []types.SourceRef {
	var refs []types.SourceRef
	for _, raw := range strings.Split(indexList, ",") {
		raw = strings.TrimSpace(raw)
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > len(batch) {
			continue
		}
		src := batch[n-1]
		refs = append(refs, types.SourceRef{Title: src.Title, URL: src.URL})
	}
	return refs
}

func parseCredibility(raw string) types.CredibilityLabel {
	switch raw {
	case "high":
		return types.CredibilityHigh
	case "medium":
		return types.CredibilityMedium
	case "low":
		return types.CredibilityLow
	default:
		return types.CredibilityUnknown
	}
}

// mergeNearDuplicates asks the LLM to dedup findings when there are more
// than 10 of them; any parse failure keeps every finding, since a
// conservative merge failure should never lose data.
func (s *Stage) mergeNearDuplicates(ctx context.Context, findings []types.Finding) []types.Finding {
	if s.llm == nil || len(findings) <= 10 {
		return findings
	}

	var b strings.Builder
	b.WriteString("Which of these findings are near-duplicates of an earlier one in the list? Reply with a comma-separated list of the duplicate indices to remove, or NONE.\n\n")
	for i, f := range findings {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f.Content)
	}

	reply, err := s.llm.Generate(ctx, b.String(), s.model, "", 0.0, 200)
	if err != nil {
		s.logger.Warn("near-duplicate merge LLM call failed, keeping all findings", zap.Error(err))
		return findings
	}

	remove, ok := llmclient.ExtractIndexList(reply)
	if !ok {
		s.logger.Warn("near-duplicate merge reply unparsable, keeping all findings", zap.String("reply", reply))
		return findings
	}

	toRemove := make(map[int]bool, len(remove))
	for _, idx := range remove {
		toRemove[idx] = true
	}

	out := make([]types.Finding, 0, len(findings))
	for i, f := range findings {
		if toRemove[i+1] {
			continue
		}
		out = append(out, f)
	}
	return out
}
