// Package agentloop runs the decision loop of an autonomous agent.
//
// A Session repeatedly shows an LLM the goal, a window of the history and the
// usage of every registered command, parses the single command the model
// chooses, validates it against the command's schema, executes it and
// records the result. It stops when a command reports goal_complete, when
// the iteration budget is spent, or on a fatal error.
//
// # States
//
// Every iteration walks the same states in order:
//
//	collect_context → build_prompt → query_llm → parse_decision →
//	validate → dispatch → record
//
// and the session ends in succeeded, budget_exhausted or failed. A decision
// naming an unknown command or carrying invalid arguments is recorded as a
// rejected entry and the loop continues, so the model sees the error and can
// correct itself. Each iteration spends one unit of budget, rejected ones
// included; re-queries after an unparseable response do not.
//
// Cancellation is checked between states. The LLM query observes it; a
// running command never does, and its result is always recorded.
//
// # Quick Start
//
//	reg := command.NewRegistry()
//	builtin.Register(reg, builtin.Options{Workspace: ws})
//
//	llm := unifiedllm.NewCompleter(client, unifiedllm.CompleterOptions{Model: "llama3.1"})
//	s := agentloop.NewSession(reg, llm, agentloop.WithLogger(logger))
//
//	out, err := s.Run(ctx, "Summarize notes.txt", 10)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.State, out.Iterations)
package agentloop
