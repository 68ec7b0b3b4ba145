// Package cmd contains CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/instantcocoa/verdict/cli/internal/config"
)

var (
	cfg     *config.Config
	format  string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Verdict - batch evaluation for model outputs",
	Long: `Verdict runs batch evaluations of language model outputs.

It expands conversation datasets into per-turn evaluation items, fetches
model outputs against one or more endpoints, scores them with a pluggable
strategy, and writes an aggregated report.

Examples:
  # Evaluate a JSONL dataset with exact match scoring
  verdict run --data-file cases.jsonl --scoring exact_match --model my-model --endpoints http://localhost:8000

  # Resume an interrupted run from its checkpoint
  verdict run --data-file cases.jsonl --scoring rouge --checkpoint run.ckpt --resume

  # List available scoring strategies
  verdict strategies

  # Summarize a saved report
  verdict report show reports/report_20260831_120000.json
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.DefaultConfig()
		if format != "" {
			cfg.Format = format
		}
		cfg.Verbose = verbose
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(strategiesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints version info.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("verdict version 0.1.0")
	},
}
