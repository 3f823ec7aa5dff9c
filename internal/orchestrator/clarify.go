package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/researchflow/researchflow/types"
)

// clarification is the Clarify stage's pipeline artifact: a short set of
// focus areas the LLM infers from the raw query, merged with any the
// caller supplied explicitly.
type clarification struct {
	FocusAreas []string `json:"focus_areas"`
	Notes      string   `json:"notes,omitempty"`
}

func (o *Orchestrator) runClarify(ctx context.Context, session *types.Session) error {
	if o.llm == nil {
		return o.persistClarification(ctx, session, clarification{FocusAreas: session.Params.FocusAreas})
	}

	prompt := fmt.Sprintf(
		"Given this research query, suggest up to 3 focus areas that would make the research more targeted. Reply with one focus area per line.\n\nQuery: %s",
		session.Query)

	reply, err := o.llm.Generate(ctx, prompt, o.models.Clarify, "", 0.5, 200)
	if err != nil {
		return &StageError{Stage: "clarify", Kind: StageFatal, Err: err}
	}

	var inferred []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			inferred = append(inferred, line)
		}
	}

	merged := mergeFocusAreas(session.Params.FocusAreas, inferred)
	return o.persistClarification(ctx, session, clarification{FocusAreas: merged})
}

func (o *Orchestrator) persistClarification(ctx context.Context, session *types.Session, c clarification) error {
	if err := o.store.SetPipelineData(ctx, session.ID, "clarification", c); err != nil {
		return &StageError{Stage: "clarify", Kind: StoreFail, Err: err}
	}
	session.Params.FocusAreas = c.FocusAreas
	return nil
}

func mergeFocusAreas(explicit, inferred []string) []string {
	seen := make(map[string]bool, len(explicit))
	out := make([]string, 0, len(explicit)+len(inferred))
	for _, f := range explicit {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range inferred {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
