package orchestrator

import "github.com/researchflow/researchflow/types"

// stageOrder is the fixed pipeline sequence; weights are defined in
// types.StageWeights and must sum to 100.
var stageOrder = []string{"clarify", "retrieve", "analyze", "verify", "report"}

// progressTracker computes the monotonic, weighted overall progress of a
// session across its fixed stage sequence: completed stages contribute
// their full weight, the currently running stage contributes weight times
// its own 0-100 progress, and everything after it contributes zero.
type progressTracker struct {
	highWater int
}

// Overall computes the clamped, ratcheted overall progress given the
// current per-stage status map.
func (t *progressTracker) Overall(stageStatus map[string]types.StageState) int {
	total := 0
	for _, stage := range stageOrder {
		weight := types.StageWeights[stage]
		state, ok := stageStatus[stage]
		if !ok {
			continue
		}
		switch state.Status {
		case "completed":
			total += weight
		case "running", "degraded":
			total += weight * clampInt(state.Progress, 0, 100) / 100
		}
	}
	if total > 100 {
		total = 100
	}
	if total < t.highWater {
		total = t.highWater // progress is monotonic non-decreasing within a run
	}
	t.highWater = total
	return total
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
