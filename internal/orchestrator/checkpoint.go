package orchestrator

import (
	"context"
	"time"
)

// ApprovalDecision is the outcome of a supervised-mode checkpoint.
type ApprovalDecision struct {
	Approved bool
	Reason   string
}

// HumanInput is the external collaborator consulted at supervised-mode
// checkpoints. Implementations may back this with a UI, a chat channel, or
// (in tests) a canned response.
type HumanInput interface {
	RequestApproval(ctx context.Context, sessionID, checkpoint string) (<-chan ApprovalDecision, error)
}

// checkpointGrace is the auto-continue fallback window: the original
// system's orchestrator checkpoints on a brief sleep rather than an
// indefinite wait, and this implementation preserves that exact dual
// behavior (wait-then-auto-continue) instead of silently picking one side
// of the ambiguity — see the design notes for this decision.
const checkpointGrace = 500 * time.Millisecond

// awaitApproval blocks on decisions until either a decision arrives, the
// grace period elapses (auto-continue), or ctx is cancelled.
func awaitApproval(ctx context.Context, decisions <-chan ApprovalDecision) (ApprovalDecision, error) {
	timer := time.NewTimer(checkpointGrace)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ApprovalDecision{}, ctx.Err()
	case decision := <-decisions:
		return decision, nil
	case <-timer.C:
		return ApprovalDecision{Approved: true, Reason: "auto-continue: no response within grace period"}, nil
	}
}
