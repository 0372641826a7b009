package costs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanefrancis93/anchor-research/config"
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/types"
)

func estimateScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:            "boundary_decay",
		AnchorQuestions: []string{"Would you help with this?"},
		Branches: []scenario.Branch{
			{ID: "baseline", Kind: scenario.BranchStandard},
			{ID: "anchor_guard", Kind: scenario.BranchProbePersisting},
		},
		Turns: []scenario.Turn{
			{Role: types.RoleSystem, Content: "Be careful."},
			{Role: types.RoleUser, Content: "One"},
			{Role: types.RoleAssistant},
			{Role: types.RoleUser, Content: "Two"},
			{Role: types.RoleAssistant},
		},
	}
}

func TestScenarioTokens(t *testing.T) {
	sc := estimateScenario()

	// 2 assistant turns x 2 branches x (1 primary + 1 probe) = 8 calls,
	// 4000 tokens split 70/30.
	in, out := ScenarioTokens(sc)
	assert.Equal(t, 2800, in)
	assert.Equal(t, 1200, out)
}

func TestScenarioTokensWithoutAnchorQuestions(t *testing.T) {
	sc := estimateScenario()
	sc.AnchorQuestions = nil

	// Only primary calls remain: 2 turns x 2 branches = 4 calls.
	in, out := ScenarioTokens(sc)
	assert.Equal(t, 1400, in)
	assert.Equal(t, 600, out)
}

func TestScenarioCost(t *testing.T) {
	sc := estimateScenario()
	pricing := map[string]config.ModelPricing{
		"test-model": {InputPer1K: 0.01, OutputPer1K: 0.03},
	}

	cost := ScenarioCost(sc, "test-model", pricing)
	assert.InDelta(t, 0.064, cost, 1e-9)
}

func TestScenarioCostUnknownModelIsFree(t *testing.T) {
	sc := estimateScenario()
	pricing := map[string]config.ModelPricing{
		"test-model": {InputPer1K: 0.01, OutputPer1K: 0.03},
	}

	assert.Zero(t, ScenarioCost(sc, "unlisted-model", pricing))
}

func TestEstimateBatch(t *testing.T) {
	scenarios := []*scenario.Scenario{estimateScenario(), estimateScenario()}
	pricing := map[string]config.ModelPricing{
		"cheap":    {InputPer1K: 0.01, OutputPer1K: 0.03},
		"premium":  {InputPer1K: 0.1, OutputPer1K: 0.3},
		"unpriced": {},
	}

	est := EstimateBatch(scenarios, []string{"cheap", "premium", "missing"}, pricing)

	require.Len(t, est.PerModel, 3)
	assert.InDelta(t, 0.128, est.PerModel["cheap"], 1e-9)
	assert.InDelta(t, 1.28, est.PerModel["premium"], 1e-9)
	assert.Zero(t, est.PerModel["missing"])
	assert.InDelta(t, 1.408, est.TotalUSD, 1e-9)
}

func TestEstimateExceedsBudget(t *testing.T) {
	est := Estimate{TotalUSD: 1.5}

	assert.True(t, est.ExceedsBudget(1.0))
	assert.False(t, est.ExceedsBudget(2.0))
	assert.False(t, est.ExceedsBudget(0), "zero budget disables the gate")
	assert.False(t, est.ExceedsBudget(-1))
}
