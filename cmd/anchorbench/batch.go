package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/shanefrancis93/anchor-research/config"
	"github.com/shanefrancis93/anchor-research/costs"
	"github.com/shanefrancis93/anchor-research/engine"
	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/scenario"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every scenario against a grid of models",
	Long: `Run the full scenarios x models grid with bounded concurrency. Each
combination gets its own driver and run ID; individual failures are collected
without aborting the rest of the grid.

Before anything is spent the projected cost is printed, and when it exceeds
the budget (--budget or settings budget_usd) the batch asks for confirmation.
Per-turn metrics across all runs are exported to one CSV.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringSlice("models", nil, "provider/model targets (default: every provider's default model)")
	batchCmd.Flags().String("scenarios-dir", "scenarios", "Directory of scenario files")
	batchCmd.Flags().StringP("out", "o", "", "Output directory (settings output_dir when empty)")
	batchCmd.Flags().Float64("budget", 0, "Budget gate in USD (settings budget_usd when unset)")
	batchCmd.Flags().BoolP("yes", "y", false, "Skip the over-budget confirmation")
	batchCmd.Flags().IntP("concurrency", "j", engine.DefaultBatchConcurrency, "Concurrent scenario runs")
	addSamplingFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	configDir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	scenariosDir, _ := cmd.Flags().GetString("scenarios-dir")
	scenarios, err := scenario.LoadDir(scenariosDir)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios found in %s", scenariosDir)
	}

	targets, err := batchTargets(cmd, cfg)
	if err != nil {
		return err
	}

	if err := checkBudget(cmd, cfg, scenarios, targets); err != nil {
		return err
	}

	opts, err := engineOptions(cmd)
	if err != nil {
		return err
	}

	outDir := outputDir(cmd, cfg.Settings)
	writer, err := results.NewWriter(outDir)
	if err != nil {
		return err
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	batch := engine.NewBatchRunner(cfg, writer, opts, concurrency)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, runErr := batch.Run(ctx, targets, scenarios)

	if len(result.Rows) > 0 {
		csvPath := filepath.Join(outDir, "metrics_"+engine.NewRunID()+".csv")
		if err := results.SaveMetricsCSV(csvPath, result.Rows); err != nil {
			return err
		}
		fmt.Printf("Metrics CSV: %s\n", csvPath)
	}

	fmt.Printf("Batch finished: %d runs, %d failed.\n", result.Runs, result.Failed)
	return runErr
}

// batchTargets resolves the model grid: explicit provider/model specs when
// --models is given, otherwise every configured provider's default model.
func batchTargets(cmd *cobra.Command, cfg *config.Config) ([]engine.ModelTarget, error) {
	specs, _ := cmd.Flags().GetStringSlice("models")
	if len(specs) == 0 {
		targets := engine.DefaultTargets(cfg)
		if len(targets) == 0 {
			return nil, fmt.Errorf("no provider has a default model configured; pass --models")
		}
		return targets, nil
	}

	targets := make([]engine.ModelTarget, 0, len(specs))
	for _, spec := range specs {
		providerName, model, err := config.ParseModelSpec(spec)
		if err != nil {
			return nil, err
		}
		if _, ok := cfg.Provider(providerName); !ok {
			return nil, fmt.Errorf("unknown provider %q in model spec %q", providerName, spec)
		}
		targets = append(targets, engine.ModelTarget{Provider: providerName, Model: model})
	}
	return targets, nil
}

// checkBudget prints the cost projection and gates over-budget batches behind
// a confirmation prompt unless --yes was passed.
func checkBudget(cmd *cobra.Command, cfg *config.Config, scenarios []*scenario.Scenario, targets []engine.ModelTarget) error {
	models := make([]string, 0, len(targets))
	for _, target := range targets {
		models = append(models, target.Model)
	}

	estimate := costs.EstimateBatch(scenarios, models, cfg.Settings.CostPer1KTokens)
	fmt.Printf("Estimated cost for %d scenarios x %d models: $%.2f\n",
		len(scenarios), len(targets), estimate.TotalUSD)
	for _, model := range models {
		fmt.Printf("  %s: $%.2f\n", model, estimate.PerModel[model])
	}

	budget := cfg.Settings.BudgetUSD
	if cmd.Flags().Changed("budget") {
		budget, _ = cmd.Flags().GetFloat64("budget")
	}
	if !estimate.ExceedsBudget(budget) {
		return nil
	}

	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		fmt.Printf("Estimate exceeds budget ($%.2f); continuing (--yes).\n", budget)
		return nil
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Estimate $%.2f exceeds budget $%.2f. Continue anyway", estimate.TotalUSD, budget),
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		return fmt.Errorf("batch aborted: estimated cost exceeds budget")
	}
	return nil
}
