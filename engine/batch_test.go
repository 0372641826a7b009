package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanefrancis93/anchor-research/config"
	"github.com/shanefrancis93/anchor-research/providers/mock"
	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/scenario"
	"github.com/shanefrancis93/anchor-research/types"
)

func mockConfig() *config.Config {
	return &config.Config{
		Providers: map[string]config.ProviderSpec{
			"mock": {Type: "mock", DefaultModel: "mock-model", Temperature: 0.7, MaxTokens: 100},
		},
		Settings: config.Settings{
			OutputDir: "outputs",
			BudgetUSD: 5,
			CostPer1KTokens: map[string]config.ModelPricing{
				"mock-model": {InputPer1K: 0.001, OutputPer1K: 0.002},
			},
		},
	}
}

func simpleScenario(name string) *scenario.Scenario {
	return &scenario.Scenario{
		Name:            name,
		AnchorQuestions: []string{"Still safe?"},
		Branches:        []scenario.Branch{standardBranch("baseline")},
		Turns: []scenario.Turn{
			userTurn("Hello"),
			assistantTurn(),
		},
	}
}

func TestBatchRunnerRunsFullGrid(t *testing.T) {
	writer, err := results.NewWriter(t.TempDir())
	require.NoError(t, err)

	cfg := mockConfig()
	batch := NewBatchRunner(cfg, writer, Options{}, 2)
	scenarios := []*scenario.Scenario{simpleScenario("alpha"), simpleScenario("beta")}

	result, err := batch.Run(context.Background(), DefaultTargets(cfg), scenarios)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.Runs)
	assert.Zero(t, result.Failed)

	// One assistant turn per branch per scenario.
	require.Len(t, result.Rows, 2)
	names := map[string]bool{}
	for _, row := range result.Rows {
		names[row.Scenario] = true
		assert.Equal(t, "mock", row.Provider)
		assert.Equal(t, "mock-model", row.Model)
		assert.Equal(t, "baseline", row.Branch)
		assert.NotEmpty(t, row.RunID)

		tokens, ok := row.Metrics.Int(types.MetricTokensPrimary)
		require.True(t, ok)
		assert.Positive(t, tokens)
	}
	assert.True(t, names["alpha"])
	assert.True(t, names["beta"])

	paths, err := results.List(writer.TranscriptsDir())
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestBatchRunnerCollectsFailuresWithoutAborting(t *testing.T) {
	writer, err := results.NewWriter(t.TempDir())
	require.NoError(t, err)

	batch := NewBatchRunner(mockConfig(), writer, Options{}, 1)
	targets := []ModelTarget{
		{Provider: "missing", Model: "nope"},
		{Provider: "mock", Model: "mock-model"},
	}

	result, err := batch.Run(context.Background(), targets, []*scenario.Scenario{simpleScenario("alpha")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "some runs failed")

	require.NotNil(t, result)
	assert.Equal(t, 2, result.Runs)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Rows, 1, "the healthy combination still produces rows")
}

func TestDefaultTargets(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderSpec{
			"zeta":  {Type: "mock", DefaultModel: "model-z"},
			"alpha": {Type: "mock", DefaultModel: "model-a"},
			"empty": {Type: "mock"},
		},
	}

	targets := DefaultTargets(cfg)
	require.Len(t, targets, 2)
	assert.Equal(t, ModelTarget{Provider: "alpha", Model: "model-a"}, targets[0])
	assert.Equal(t, ModelTarget{Provider: "zeta", Model: "model-z"}, targets[1])
}

func TestNewDriverFromConfig(t *testing.T) {
	cfg := mockConfig()

	driver, err := NewDriverFromConfig(cfg, "mock", "")
	require.NoError(t, err)
	defer driver.Close()

	assert.Equal(t, "mock", driver.ID())
	assert.Equal(t, "mock-model", driver.Model(), "empty model selects the provider default")
	_, isMock := driver.(*mock.Driver)
	assert.True(t, isMock, "no rate limit configured, so the driver is returned unwrapped")

	_, err = NewDriverFromConfig(cfg, "nope", "")
	assert.Error(t, err)

	cfg.Providers["bare"] = config.ProviderSpec{Type: "mock"}
	_, err = NewDriverFromConfig(cfg, "bare", "")
	assert.Error(t, err, "no model anywhere")
}

func TestNewDriverFromConfigAppliesRateLimit(t *testing.T) {
	cfg := mockConfig()
	spec := cfg.Providers["mock"]
	spec.RequestsPerMinute = 600
	cfg.Providers["mock"] = spec

	driver, err := NewDriverFromConfig(cfg, "mock", "")
	require.NoError(t, err)
	defer driver.Close()

	_, isMock := driver.(*mock.Driver)
	assert.False(t, isMock, "rate limiting wraps the underlying driver")
	assert.Equal(t, "mock", driver.ID())
}
