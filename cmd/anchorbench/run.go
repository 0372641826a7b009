package main

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shanefrancis93/anchor-research/config"
	"github.com/shanefrancis93/anchor-research/engine"
	"github.com/shanefrancis93/anchor-research/evaluators"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/providers/mock"
	"github.com/shanefrancis93/anchor-research/results"
	"github.com/shanefrancis93/anchor-research/scenario"
)

// Flag name constants to avoid duplication
const (
	flagTemperature = "temperature"
	flagMaxTokens   = "max-tokens"
)

var runCmd = &cobra.Command{
	Use:   "run [scenario file]",
	Short: "Run one scenario against a model",
	Long: `Run a single scenario: every branch is executed concurrently turn by
turn, anchor probes are issued at each assistant turn, and one transcript per
branch is written under the output directory.

With --mock the scenario runs against the in-process mock driver, which needs
no configuration or API keys.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenario(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("scenario", "s", "", "Scenario file to run")
	runCmd.Flags().StringP("provider", "p", "", "Provider entry from providers.yaml")
	runCmd.Flags().String("model", "", "Model override (provider default model when empty)")
	runCmd.Flags().StringP("out", "o", "", "Output directory (settings output_dir when empty)")
	runCmd.Flags().Int("probes", 0, "Override the scenario's probes_per_point")
	runCmd.Flags().Bool("mock", false, "Run against the in-process mock driver")
	runCmd.Flags().String("judge", "", "Grade pushback with a second model (provider/model spec)")
	addSamplingFlags(runCmd)

	_ = viper.BindPFlag("out_dir", runCmd.Flags().Lookup("out"))
	_ = viper.BindPFlag(flagTemperature, runCmd.Flags().Lookup(flagTemperature))
	_ = viper.BindPFlag(flagMaxTokens, runCmd.Flags().Lookup(flagMaxTokens))
}

// addSamplingFlags registers the sampling overrides shared by the commands
// that issue model calls.
func addSamplingFlags(cmd *cobra.Command) {
	cmd.Flags().Float32(flagTemperature, 0, "Sampling temperature for primary calls")
	cmd.Flags().Int(flagMaxTokens, 0, "Max tokens per response")
	cmd.Flags().Int("seed", 0, "Sampling seed, for providers that honor one")
	cmd.Flags().Bool("logprobs", false, "Request token logprobs on probe calls")
}

// engineOptions builds sampling options from the flags addSamplingFlags
// registered. Untouched flags stay zero so driver defaults apply.
func engineOptions(cmd *cobra.Command) (engine.Options, error) {
	var opts engine.Options

	if cmd.Flags().Changed(flagTemperature) {
		t, err := cmd.Flags().GetFloat32(flagTemperature)
		if err != nil {
			return opts, err
		}
		opts.Temperature = t
	}
	if cmd.Flags().Changed(flagMaxTokens) {
		n, err := cmd.Flags().GetInt(flagMaxTokens)
		if err != nil {
			return opts, err
		}
		opts.MaxTokens = n
	}
	if cmd.Flags().Changed("seed") {
		seed, err := cmd.Flags().GetInt("seed")
		if err != nil {
			return opts, err
		}
		opts.Seed = &seed
	}
	opts.Logprobs, _ = cmd.Flags().GetBool("logprobs")

	return opts, nil
}

// outputDir resolves the output directory: explicit flag first, then the
// ANCHORBENCH_OUT_DIR environment variable, then settings.yaml.
func outputDir(cmd *cobra.Command, settings config.Settings) string {
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		return out
	}
	if out := viper.GetString("out_dir"); out != "" {
		return out
	}
	if settings.OutputDir != "" {
		return settings.OutputDir
	}
	return "outputs"
}

func runScenario(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("scenario")
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("scenario file is required (positional argument or --scenario)")
	}

	sc, err := scenario.LoadFile(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("probes") {
		probes, _ := cmd.Flags().GetInt("probes")
		sc.ProbesPerPoint = probes
	}

	opts, err := engineOptions(cmd)
	if err != nil {
		return err
	}

	driver, settings, err := buildDriver(cmd)
	if err != nil {
		return err
	}
	defer driver.Close()

	writer, err := results.NewWriter(outputDir(cmd, settings))
	if err != nil {
		return err
	}

	var embedder providers.Embedder
	if e, ok := driver.(providers.Embedder); ok {
		embedder = e
	}
	factory, judgeCleanup, err := withJudge(cmd, evaluators.DefaultFactory(embedder))
	if err != nil {
		return err
	}
	defer judgeCleanup()
	runner := engine.NewRunner(driver, factory, writer, opts)

	fmt.Printf("Running %s (%d branches, %d user turns) against %s/%s\n\n",
		sc.Name, len(sc.Branches), sc.UserTurnCount(), driver.ID(), driver.Model())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	states, runErr := runner.RunScenario(ctx, sc)
	printRunSummary(sc, states, writer, runner.RunID())
	return runErr
}

// buildDriver returns the driver to run against plus the loaded settings.
// Mock mode skips configuration entirely so scenarios can run offline.
func buildDriver(cmd *cobra.Command) (providers.Driver, config.Settings, error) {
	model, _ := cmd.Flags().GetString("model")

	if useMock, _ := cmd.Flags().GetBool("mock"); useMock {
		if model == "" {
			model = "mock-model"
		}
		return mock.NewEmbedding("mock", model), config.Settings{}, nil
	}

	providerName, _ := cmd.Flags().GetString("provider")
	if providerName == "" {
		return nil, config.Settings{}, fmt.Errorf("provider is required (or pass --mock)")
	}

	configDir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, config.Settings{}, err
	}

	driver, err := engine.NewDriverFromConfig(cfg, providerName, model)
	if err != nil {
		return nil, config.Settings{}, err
	}
	return driver, cfg.Settings, nil
}

// withJudge extends the evaluator set with a model-graded pushback scorer
// when --judge names a provider/model spec. The judge driver is shared by
// every branch, like the primary driver.
func withJudge(cmd *cobra.Command, base evaluators.Factory) (evaluators.Factory, func(), error) {
	spec, _ := cmd.Flags().GetString("judge")
	if spec == "" {
		return base, func() {}, nil
	}

	providerName, model, err := config.ParseModelSpec(spec)
	if err != nil {
		return nil, nil, err
	}
	configDir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, err
	}
	judge, err := engine.NewDriverFromConfig(cfg, providerName, model)
	if err != nil {
		return nil, nil, err
	}

	factory := func() []evaluators.Evaluator {
		return append(base(), evaluators.NewJudge(judge))
	}
	return factory, func() { _ = judge.Close() }, nil
}

func printRunSummary(sc *scenario.Scenario, states map[string]*engine.BranchState, writer *results.Writer, runID string) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BRANCH\tTURNS\tTOKENS\tTRANSCRIPT")
	fmt.Fprintln(tw, "------\t-----\t------\t----------")
	for _, branch := range sc.Branches {
		state, ok := states[branch.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n",
			branch.ID, state.TurnCount, state.TotalTokens, writer.Path(sc.Name, branch.ID, runID))
	}
	_ = tw.Flush()

	fmt.Printf("\nRun %s complete.\n", runID)
}
