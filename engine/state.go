package engine

import (
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/types"
)

// BranchState tracks one conversation branch over a run. Exactly one
// goroutine touches a given state during a turn, so no locking is needed;
// the runner's turn barrier orders all cross-turn access.
type BranchState struct {
	Branch      scenario.Branch
	Messages    []types.Message
	TurnCount   int
	TotalTokens int
	Metrics     []types.MetricRecord
}

// NewBranchState returns an empty state for the branch.
func NewBranchState(branch scenario.Branch) *BranchState {
	return &BranchState{Branch: branch}
}

// TurnResult is the ephemeral outcome of one processed assistant turn. It is
// consumed by the runner to advance branch state and then discarded; the
// durable record is the metric entry and the transcript.
type TurnResult struct {
	Primary *types.TurnOutcome
	Probes  []*types.TurnOutcome
	Metrics types.MetricRecord
}
