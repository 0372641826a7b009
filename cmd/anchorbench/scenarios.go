package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shanefrancis93/anchor-research/scenario"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Inspect and validate scenario files",
}

var scenariosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scenarios in a directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("scenarios-dir")
		scenarios, err := scenario.LoadDir(dir)
		if err != nil {
			return err
		}
		if len(scenarios) == 0 {
			fmt.Printf("No scenarios found in %s.\n", dir)
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tBEHAVIOR\tBRANCHES\tUSER TURNS\tPROBE QUESTIONS")
		fmt.Fprintln(tw, "----\t--------\t--------\t----------\t---------------")
		for _, sc := range scenarios {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n",
				sc.Name, sc.BehaviorTested, len(sc.Branches), sc.UserTurnCount(), len(sc.AnchorQuestions))
		}
		return tw.Flush()
	},
}

var scenariosValidateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate scenario files",
	Long: `Check scenario files against the front-matter schema and for semantic
problems a schema cannot catch (no assistant turns, duplicate branch ids).
Without arguments the whole scenarios directory is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			dir, _ := cmd.Flags().GetString("scenarios-dir")
			var err error
			paths, err = scenarioPaths(dir)
			if err != nil {
				return err
			}
		}
		if len(paths) == 0 {
			return fmt.Errorf("no scenario files to validate")
		}

		failures := 0
		for _, path := range paths {
			issues := validateScenarioFile(path)
			if len(issues) == 0 {
				fmt.Printf("%s: ok\n", path)
				continue
			}
			failures++
			fmt.Printf("%s:\n", path)
			for _, issue := range issues {
				fmt.Printf("  %s\n", issue)
			}
		}

		if failures > 0 {
			return fmt.Errorf("%d of %d files failed validation", failures, len(paths))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.AddCommand(scenariosListCmd, scenariosValidateCmd)

	scenariosListCmd.Flags().String("scenarios-dir", "scenarios", "Directory of scenario files")
	scenariosValidateCmd.Flags().String("scenarios-dir", "scenarios", "Directory checked when no files are given")
}

func scenarioPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// validateScenarioFile returns everything wrong with one file: schema
// violations first, then semantic issues from the parsed form.
func validateScenarioFile(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{err.Error()}
	}

	violations, err := scenario.ValidateContent(data)
	if err != nil {
		return []string{err.Error()}
	}
	if len(violations) > 0 {
		issues := make([]string, 0, len(violations))
		for _, v := range violations {
			issues = append(issues, v.Error())
		}
		return issues
	}

	sc, err := scenario.Parse(data)
	if err != nil {
		return []string{err.Error()}
	}
	return scenario.Validate(sc)
}
