package agentloop

// State is a step of the decision loop.
type State string

const (
	StateIdle            State = "idle"
	StateCollectContext  State = "collect_context"
	StateBuildPrompt     State = "build_prompt"
	StateQueryLLM        State = "query_llm"
	StateParseDecision   State = "parse_decision"
	StateValidate        State = "validate"
	StateDispatch        State = "dispatch"
	StateRecord          State = "record"
	StateSucceeded       State = "succeeded"
	StateBudgetExhausted State = "budget_exhausted"
	StateFailed          State = "failed"
)

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateBudgetExhausted, StateFailed:
		return true
	}
	return false
}
