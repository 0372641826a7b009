// Package evaluators scores assistant and probe turns produced during a
// conversation run. Evaluators are pure consumers: they receive the turn
// outcomes plus read-only context and return a metric record, never an error.
// A failing evaluator contributes a partial or empty record and the run
// continues.
package evaluators

import (
	"context"

	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/types"
)

// Metrics is the value side of an evaluator pass. Records from multiple
// evaluators are merged in list order, last write wins.
type Metrics = types.MetricRecord

// Input carries one processed assistant turn and its surrounding context.
// Probe is the response to the first anchor question; Probes holds all of
// them in question order. Any field may be nil when the corresponding call
// was not made.
type Input struct {
	Scenario *scenario.Scenario
	BranchID string
	Turn     int
	History  []types.Message
	Primary  *types.TurnOutcome
	Probe    *types.TurnOutcome
	Probes   []*types.TurnOutcome
}

// Evaluator scores a single processed turn.
type Evaluator interface {
	// Name identifies the evaluator in logs and metrics.
	Name() string

	// Evaluate returns metrics for the turn. Implementations must tolerate
	// nil outcomes and return whatever subset they can compute.
	Evaluate(ctx context.Context, in Input) Metrics
}

// Factory builds a fresh evaluator list. The runner calls it once per
// branch so that stateful evaluators never share state across branches.
type Factory func() []Evaluator

// DefaultFactory returns the standard heuristic set: pushback ladder,
// anchor drift, and probe response clustering. The drift evaluator only
// emits embedding distances when embedder is non-nil.
func DefaultFactory(embedder providers.Embedder) Factory {
	return func() []Evaluator {
		return []Evaluator{
			NewPushback(),
			NewDrift(embedder),
			NewClustering(),
		}
	}
}
