package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/martinemde/thinkloop/agentloop"
)

func (a *app) commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the available commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			for s := range reg.ListAvailable() {
				fmt.Fprintf(a.out, "%s: %s\n", s.Name, s.Description)
			}
			return nil
		},
	}
}

func (a *app) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Print the usage block of one command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			text, ok := a.promptBuilder(reg).CommandPrompt(args[0])
			if !ok {
				fmt.Fprintln(a.errOut, text)
				return &exitError{code: 1, msg: text}
			}
			fmt.Fprint(a.out, text)
			return nil
		},
	}
}

func (a *app) promptCmd() *cobra.Command {
	var sessionID string
	var budget int
	cmd := &cobra.Command{
		Use:   "prompt [goal]",
		Short: "Print the next decision prompt for a goal or a stored session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			dc, err := a.decisionContext(cmd, args, sessionID, budget)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, a.promptBuilder(reg).DecisionPrompt(dc))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue from a stored session's history")
	cmd.Flags().IntVar(&budget, "budget", 0, "iteration budget (default from config)")
	return cmd
}

func (a *app) decisionContext(cmd *cobra.Command, args []string, sessionID string, budget int) (agentloop.DecisionContext, error) {
	if sessionID == "" {
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return agentloop.DecisionContext{}, agentloop.ErrEmptyGoal
		}
		if budget <= 0 {
			budget = a.cfg.Loop.Budget
		}
		return agentloop.DecisionContext{Goal: args[0], Remaining: budget, Iteration: 1}, nil
	}

	s, err := a.requireStore()
	if err != nil {
		return agentloop.DecisionContext{}, err
	}
	defer s.Close()
	o, err := s.Session(cmd.Context(), sessionID)
	if err != nil {
		return agentloop.DecisionContext{}, err
	}
	if budget <= 0 {
		budget = o.Budget
	}
	remaining := budget - o.Iterations
	if remaining < 1 {
		return agentloop.DecisionContext{}, fmt.Errorf("session %s has no iterations left", sessionID)
	}
	return agentloop.DecisionContext{
		Goal:      o.Goal,
		Entries:   o.History,
		Remaining: remaining,
		Iteration: o.Iterations + 1,
	}, nil
}
