package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shanefrancis93/anchor-research/logger"
)

var rootCmd = &cobra.Command{
	Use:           "anchorbench",
	Short:         "Guardrail decay harness for multi-turn LLM conversations",
	Version:       GetVersion(),
	SilenceUsage:  true,  // Don't print usage on error
	SilenceErrors: false, // Do print errors
	Long: `anchorbench drives scripted multi-turn conversations against language
models to measure guardrail decay: whether a model's refusal or pushback
stance erodes when a user keeps pushing against it.

Each scenario forks into branches that evolve independently, and a fixed
anchor question is re-asked at every assistant turn to track stance drift
without disturbing the main conversation. Runs produce per-turn metric
records and JSONL transcripts for offline analysis and hand labeling.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return
			}
			logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose debug logging for model calls")
	rootCmd.PersistentFlags().StringP("config", "c", "config", "Directory holding providers.yaml and settings.yaml")

	// ANCHORBENCH_OUT_DIR and friends override unset flags.
	viper.SetEnvPrefix("anchorbench")
	viper.AutomaticEnv()
}

func Execute() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
	if err := rootCmd.Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

func main() {
	Execute()
}
