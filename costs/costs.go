// Package costs projects what a set of runs will spend before any model call
// is made. The numbers are deliberately rough: they exist to catch a batch
// that would blow the configured budget, not to predict invoices.
package costs

import (
	"github.com/shanefrancis93/anchor-research/config"
	"github.com/shanefrancis93/anchor-research/scenario"
)

// Estimation assumptions.
const (
	// AvgTokensPerCall is the assumed token volume of one model call,
	// primary or probe, input and output combined.
	AvgTokensPerCall = 500

	inputShare  = 0.7
	outputShare = 0.3
)

// ScenarioTokens projects the token volume of running one scenario once:
// every branch executes every assistant turn, and each assistant turn issues
// one probe call per anchor question alongside the primary call.
func ScenarioTokens(sc *scenario.Scenario) (inputTokens, outputTokens int) {
	callsPerTurn := 1 + len(sc.AnchorQuestions)
	calls := sc.AssistantTurnCount() * len(sc.Branches) * callsPerTurn
	total := calls * AvgTokensPerCall
	return int(float64(total) * inputShare), int(float64(total) * outputShare)
}

// ScenarioCost projects the USD cost of one scenario on one model. Models
// missing from the pricing table cost zero.
func ScenarioCost(sc *scenario.Scenario, model string, pricing map[string]config.ModelPricing) float64 {
	rates, ok := pricing[model]
	if !ok {
		return 0
	}
	in, out := ScenarioTokens(sc)
	return float64(in)/1000*rates.InputPer1K + float64(out)/1000*rates.OutputPer1K
}

// Estimate is a projected batch spend, broken down per model.
type Estimate struct {
	PerModel map[string]float64
	TotalUSD float64
}

// EstimateBatch sums scenario costs over a models x scenarios grid.
func EstimateBatch(scenarios []*scenario.Scenario, models []string, pricing map[string]config.ModelPricing) Estimate {
	est := Estimate{PerModel: make(map[string]float64, len(models))}
	for _, model := range models {
		for _, sc := range scenarios {
			cost := ScenarioCost(sc, model, pricing)
			est.PerModel[model] += cost
			est.TotalUSD += cost
		}
	}
	return est
}

// ExceedsBudget reports whether the estimate crosses the configured budget.
// A zero or negative budget disables the gate.
func (e Estimate) ExceedsBudget(budgetUSD float64) bool {
	return budgetUSD > 0 && e.TotalUSD > budgetUSD
}
