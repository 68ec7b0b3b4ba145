// Package strategy provides the built-in scoring strategies: literal
// and boxed-value matching, structured JSON and list comparison, ROUGE
// overlap, instruction-following verification, agent transcript
// grading, and model-graded judging.
package strategy

import (
	"github.com/instantcocoa/verdict/eval"
)

// RegisterBuiltins installs every built-in strategy into the registry.
// The caller and judge config are used only by the model-graded
// strategies; pass a nil caller to register them as unavailable (they
// will error at scoring time).
func RegisterBuiltins(reg *eval.Registry, judgeCaller eval.Caller, judge JudgeConfig) {
	reg.Register("exact_match", ExactMatch)
	reg.Register("box", Box)
	reg.Register("equal_check", EqualCheck)
	reg.Register("json_check", JSONCheck)
	reg.Register("list_check", ListCheck)
	reg.Register("rouge", Rouge)
	reg.Register("ifeval_full_scorer", IFEval)
	reg.Register("agent_instruct_score", AgentInstruct)
	reg.Register("toolbench_evaluation", ToolBench)
	reg.Register("llm_judge_with_answer", LLMJudge(judgeCaller, judge))
	reg.Register("reject", Reject(judgeCaller, judge))
}
