package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shanefrancis93/anchor-research/analysis"
	"github.com/shanefrancis93/anchor-research/config"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize decay metrics across saved transcripts",
	Long: `Aggregate every transcript under the output directory and print the
decay tables: mean pushback by turn for each scenario/branch, then the
least-squares slope and early-versus-late decay percentage per metric.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("transcripts-dir")
		if dir == "" {
			// Settings are optional here; a report only needs the files.
			configDir, _ := cmd.Flags().GetString("config")
			settings, err := config.LoadSettings(filepath.Join(configDir, "settings.yaml"))
			if err != nil {
				settings = config.Settings{}
			}
			dir = filepath.Join(outputDir(cmd, settings), "transcripts")
		}

		summary, err := analysis.SummarizeDir(dir)
		if err != nil {
			return err
		}
		return summary.Render(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("out", "o", "", "Output directory whose transcripts are summarized")
	reportCmd.Flags().String("transcripts-dir", "", "Explicit transcripts directory (overrides --out)")
}
