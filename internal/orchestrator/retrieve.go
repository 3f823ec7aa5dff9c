package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/providers"
	"github.com/researchflow/researchflow/types"
)

const zeroSourceBroadenedSuffix = " overview research analysis"
const zeroSourceMinBroadenedMaxSources = 100

// runRetrieve drives the Retrieval Stage and persists its output. If zero
// sources are persisted, it retries exactly once with a broadened query
// and a raised source cap, per the documented zero-source recovery path.
func (o *Orchestrator) runRetrieve(ctx context.Context, session *types.Session) error {
	result, err := o.retrieval.Run(ctx, session.Query, session.Params, o.retrieveProgressCallback(session))
	if err != nil {
		return classifyRetrieveErr(err)
	}

	if len(result.Sources) == 0 {
		o.logger.Info("retrieve stage found zero sources, retrying once with a broadened query",
			zap.String("session_id", session.ID))

		broadenedParams := session.Params
		if broadenedParams.MaxSources < zeroSourceMinBroadenedMaxSources {
			broadenedParams.MaxSources = zeroSourceMinBroadenedMaxSources
		}
		result, err = o.retrieval.Run(ctx, session.Query+zeroSourceBroadenedSuffix, broadenedParams, o.retrieveProgressCallback(session))
		if err != nil {
			return classifyRetrieveErr(err)
		}
	}

	if err := o.store.AddSources(ctx, session.ID, result.Sources); err != nil {
		return &StageError{Stage: "retrieve", Kind: StoreFail, Err: err}
	}
	if err := o.store.AddFindings(ctx, session.ID, result.Findings); err != nil {
		return &StageError{Stage: "retrieve", Kind: StoreFail, Err: err}
	}
	if err := o.store.SetPipelineData(ctx, session.ID, "provider_counts", result.ProviderCounts); err != nil {
		return &StageError{Stage: "retrieve", Kind: StoreFail, Err: err}
	}
	return nil
}

func classifyRetrieveErr(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return &StageError{Stage: "retrieve", Kind: Cancelled, Err: err}
	}
	return &StageError{Stage: "retrieve", Kind: StageFatal, Err: err}
}

func (o *Orchestrator) retrieveProgressCallback(session *types.Session) providers.FanOutCallback {
	return func(provider string, count, completed, total int) {
		if total == 0 {
			return
		}
		o.updateStageProgress(session, "retrieve", completed*100/total,
			"queried "+provider)
	}
}
