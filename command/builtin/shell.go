package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/thinkloop/command"
)

func shellCommand(ws *Workspace, defaultTimeout, maxTimeout time.Duration, logger *zap.Logger) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "run_shell",
			Description: "Run a shell command in the workspace directory and return its output and exit code.",
			Params: []command.Param{
				{Name: "command", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "Command line passed to /bin/sh -c"},
				{Name: "timeout_ms", Type: command.TypeInteger, Constraint: fmt.Sprintf("min=1,max=%d", maxTimeout.Milliseconds()), Description: fmt.Sprintf("Timeout in milliseconds (default %d)", defaultTimeout.Milliseconds())},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			line, _ := args.String("command")
			timeout := defaultTimeout
			if ms, ok := args.Int("timeout_ms"); ok {
				timeout = time.Duration(ms) * time.Millisecond
			}

			res, err := ws.Exec(ctx, line, timeout)
			if err != nil {
				return command.Result{}, err
			}
			logger.Debug("shell command finished",
				zap.String("command", line),
				zap.Int("exit_code", res.ExitCode),
				zap.Bool("timed_out", res.TimedOut),
				zap.Int64("duration_ms", res.DurationMs),
			)

			out := strings.TrimRight(res.Output(), "\n")
			switch {
			case res.TimedOut:
				return command.Failuref("timed out after %s\n%s", timeout, out), nil
			case res.ExitCode != 0:
				return command.Failuref("exit code %d\n%s", res.ExitCode, out), nil
			}
			if out == "" {
				out = "(no output)"
			}
			return command.Success(out), nil
		},
	}
}
