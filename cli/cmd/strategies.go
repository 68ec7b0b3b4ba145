package cmd

import (
	"github.com/spf13/cobra"

	"github.com/instantcocoa/verdict/cli/internal/output"
	"github.com/instantcocoa/verdict/eval"
	"github.com/instantcocoa/verdict/eval/strategy"
)

// strategyDescriptions gives each builtin a one-line summary for the
// table view.
var strategyDescriptions = map[string]string{
	"exact_match":           "Strict \\boxed{N} answer comparison",
	"box":                   "Lenient \\boxed{N} comparison, badcase left to the threshold",
	"equal_check":           "Exact match ignoring a trailing period",
	"json_check":            "Key overlap ratio against a reference JSON object",
	"list_check":            "Order-tolerant list answer comparison",
	"rouge":                 "ROUGE-1/2/L F-measures against the reference",
	"ifeval_full_scorer":    "Verifiable instruction-following checks",
	"agent_instruct_score":  "Agent answer/action trace grading",
	"toolbench_evaluation":  "Tool call format, name and parameter grading",
	"llm_judge_with_answer": "Model-graded comparison against the reference",
	"reject":                "Refusal format plus model-graded quality",
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available scoring strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := eval.NewRegistry()
		strategy.RegisterBuiltins(registry, nil, strategy.JudgeConfig{})
		names := registry.Names()

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(names)
		}

		table := output.Table{
			Headers: []string{"NAME", "DESCRIPTION"},
			Rows:    make([][]string, len(names)),
		}
		for i, name := range names {
			table.Rows[i] = []string{name, strategyDescriptions[name]}
		}

		w := output.NewWriter("table")
		return w.Print(table)
	},
}
