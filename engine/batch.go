package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/shanefrancis93/anchor-research/config"
	"github.com/shanefrancis93/anchor-research/evaluators"
	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/scenario"
)

// DefaultBatchConcurrency bounds simultaneous scenario runs when the caller
// does not set a limit.
const DefaultBatchConcurrency = 4

// ModelTarget names one provider/model combination of a batch grid.
type ModelTarget struct {
	Provider string // provider entry name from providers.yaml
	Model    string
}

func (t ModelTarget) String() string {
	return t.Provider + "/" + t.Model
}

// DefaultTargets returns one target per configured provider using its default
// model, sorted by provider name.
func DefaultTargets(cfg *config.Config) []ModelTarget {
	targets := make([]ModelTarget, 0, len(cfg.Providers))
	for name, spec := range cfg.Providers {
		if spec.DefaultModel == "" {
			continue
		}
		targets = append(targets, ModelTarget{Provider: name, Model: spec.DefaultModel})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Provider < targets[j].Provider })
	return targets
}

// BatchResult aggregates what a batch produced. Rows hold every turn metric
// across all runs, in grid order, ready for the CSV export.
type BatchResult struct {
	Rows   []results.MetricRow
	Runs   int // combinations attempted
	Failed int // combinations that reported an error
}

// BatchRunner executes every scenario against every model target. Each
// combination gets its own driver and runner so nothing is shared between
// concurrent runs; the number of combinations in flight is bounded by the
// configured concurrency.
type BatchRunner struct {
	cfg         *config.Config
	writer      *results.Writer
	opts        Options
	concurrency int
}

// NewBatchRunner builds a batch runner. Concurrency values below one fall
// back to DefaultBatchConcurrency.
func NewBatchRunner(cfg *config.Config, writer *results.Writer, opts Options, concurrency int) *BatchRunner {
	if concurrency < 1 {
		concurrency = DefaultBatchConcurrency
	}
	return &BatchRunner{cfg: cfg, writer: writer, opts: opts, concurrency: concurrency}
}

// Run executes the models x scenarios grid. Individual run failures are
// collected rather than aborting the batch; the returned result always
// carries every metric row that was produced.
func (b *BatchRunner) Run(ctx context.Context, targets []ModelTarget, scenarios []*scenario.Scenario) (*BatchResult, error) {
	type combination struct {
		target ModelTarget
		sc     *scenario.Scenario
	}

	combos := make([]combination, 0, len(targets)*len(scenarios))
	for _, target := range targets {
		for _, sc := range scenarios {
			combos = append(combos, combination{target: target, sc: sc})
		}
	}

	logger.Info("starting batch",
		"models", len(targets),
		"scenarios", len(scenarios),
		"runs", len(combos),
		"concurrency", b.concurrency)

	rows := make([][]results.MetricRow, len(combos))
	errs := make([]error, len(combos))
	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, combo := range combos {
		wg.Add(1)
		go func(idx int, target ModelTarget, sc *scenario.Scenario) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				errs[idx] = fmt.Errorf("scenario %s on %s: %w", sc.Name, target, err)
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			comboRows, err := b.runCombination(ctx, target, sc)

			mu.Lock()
			rows[idx] = comboRows
			if err != nil {
				errs[idx] = fmt.Errorf("scenario %s on %s: %w", sc.Name, target, err)
			}
			mu.Unlock()
		}(i, combo.target, combo.sc)
	}

	wg.Wait()

	result := &BatchResult{Runs: len(combos)}
	for _, comboRows := range rows {
		result.Rows = append(result.Rows, comboRows...)
	}

	var runErrors []error
	for _, err := range errs {
		if err != nil {
			logger.Error("batch run failed", "error", err)
			runErrors = append(runErrors, err)
		}
	}
	result.Failed = len(runErrors)

	if len(runErrors) > 0 {
		return result, fmt.Errorf("some runs failed: %v", runErrors)
	}
	return result, nil
}

// runCombination runs one scenario against one model with a fresh driver and
// runner. Metric rows are collected even when the run partially failed, since
// completed turns still carry usable data.
func (b *BatchRunner) runCombination(ctx context.Context, target ModelTarget, sc *scenario.Scenario) ([]results.MetricRow, error) {
	driver, err := NewDriverFromConfig(b.cfg, target.Provider, target.Model)
	if err != nil {
		return nil, err
	}
	defer driver.Close()

	var embedder providers.Embedder
	if e, ok := driver.(providers.Embedder); ok {
		embedder = e
	}

	runner := NewRunner(driver, evaluators.DefaultFactory(embedder), b.writer, b.opts)
	states, err := runner.RunScenario(ctx, sc)

	var comboRows []results.MetricRow
	for _, branch := range sc.Branches {
		state, ok := states[branch.ID]
		if !ok {
			continue
		}
		for _, record := range state.Metrics {
			comboRows = append(comboRows, results.MetricRow{
				RunID:    runner.RunID(),
				Model:    target.Model,
				Provider: target.Provider,
				Scenario: sc.Name,
				Branch:   branch.ID,
				Metrics:  record,
			})
		}
	}
	return comboRows, err
}

// NewDriverFromConfig builds a driver for the named provider entry, applying
// the settings cost table and wrapping with a rate limiter when the provider
// sets requests_per_minute. An empty model selects the provider's default.
func NewDriverFromConfig(cfg *config.Config, providerName, model string) (providers.Driver, error) {
	spec, ok := cfg.Provider(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
	if model == "" {
		model = spec.DefaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("provider %q has no default model", providerName)
	}

	pricing := cfg.Settings.PricingFor(model)
	driver, err := providers.NewFromSpec(providers.Spec{
		ID:        providerName,
		Type:      spec.Type,
		Model:     model,
		BaseURL:   spec.BaseURL,
		APIKeyEnv: spec.APIKeyEnv,
		Defaults: providers.Defaults{
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
			Seed:        spec.Seed,
			Pricing: providers.Pricing{
				InputCostPer1K:  pricing.InputPer1K,
				OutputCostPer1K: pricing.OutputPer1K,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return providers.RateLimited(driver, spec.RequestsPerMinute), nil
}
