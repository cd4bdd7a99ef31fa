package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martinemde/thinkloop/agentloop"
	"github.com/martinemde/thinkloop/telemetry"
)

func (a *app) runCmd() *cobra.Command {
	var budget int
	var of outputFlags
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run the decision loop until the goal is met or the budget is spent",
		Long: `Run the decision loop for a goal.

Exits 0 when the goal is met, 2 when the budget runs out and 1 when the
session fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if budget <= 0 {
				budget = a.cfg.Loop.Budget
			}
			return a.run(cmd.Context(), args[0], budget, of)
		},
	}
	cmd.Flags().IntVarP(&budget, "budget", "b", 0, "iteration budget (default from config)")
	of.register(cmd)
	return cmd
}

func (a *app) run(ctx context.Context, goal string, budget int, of outputFlags) error {
	if strings.TrimSpace(goal) == "" {
		return agentloop.ErrEmptyGoal
	}
	reg, err := a.registry()
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Endpoint:    a.cfg.Telemetry.OTLPEndpoint,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()
	if addr := a.cfg.Telemetry.MetricsAddr; addr != "" {
		metricsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := tel.ServeMetrics(metricsCtx, addr, a.logger); err != nil {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	llm, closer, err := a.newLLM(a.cfg, a.logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	opts := []agentloop.Option{
		agentloop.WithConfig(a.sessionConfig()),
		agentloop.WithLogger(a.logger.Named("session")),
		agentloop.WithMetrics(agentloop.NewMetrics(tel.Registry)),
		agentloop.WithTracerProvider(tel.TracerProvider),
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		opts = append(opts, agentloop.WithRecorder(st))
	}

	session := agentloop.NewSession(reg, llm, opts...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		progress := a.errOut
		if of.structured() {
			progress = io.Discard
		}
		reportProgress(progress, session.Events())
	}()

	outcome, err := session.Run(ctx, goal, budget)
	if err != nil {
		return err
	}
	wg.Wait()

	if ok, err := of.encode(a.out, outcome); ok {
		if err != nil {
			return err
		}
	} else {
		writeOutcome(a.out, outcome)
	}

	switch outcome.State {
	case agentloop.StateSucceeded:
		return nil
	case agentloop.StateBudgetExhausted:
		return &exitError{code: 2, msg: "budget exhausted"}
	default:
		return &exitError{code: 1, msg: outcome.Error}
	}
}

// reportProgress prints one line per finished iteration until events closes.
func reportProgress(w io.Writer, events <-chan agentloop.SessionEvent) {
	for ev := range events {
		switch ev.Kind {
		case agentloop.EventCommandEnd:
			fmt.Fprintf(w, "[%d] %v: %v\n", ev.Iteration, ev.Data["command"], ev.Data["status"])
		case agentloop.EventRejected:
			fmt.Fprintf(w, "[%d] %v: rejected: %v\n", ev.Iteration, ev.Data["command"], ev.Data["error"])
		case agentloop.EventParseError:
			fmt.Fprintf(w, "[%d] unparseable response: %v\n", ev.Iteration, ev.Data["error"])
		case agentloop.EventLoopDetection:
			fmt.Fprintf(w, "[%d] repeating the same decisions\n", ev.Iteration)
		}
	}
}
