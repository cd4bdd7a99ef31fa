package builtin

import (
	"context"
	"errors"
	"io"

	"github.com/martinemde/thinkloop/command"
)

func echoCommand() command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "echo",
			Description: "Return the given text unchanged.",
			Params: []command.Param{
				{Name: "text", Type: command.TypeString, Required: true, Description: "Text to return"},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			text, _ := args.String("text")
			return command.Success(text), nil
		},
	}
}

func historyCommand() command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "conversation_history",
			Description: "Show every command run so far in this session with its result.",
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			transcript := env.Transcript()
			if transcript == "" {
				transcript = "(no commands have been run yet)"
			}
			return command.Success(transcript), nil
		},
	}
}

func taskCompleteCommand() command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "task_complete",
			Description: "Declare the goal achieved and end the session.",
			Params: []command.Param{
				{Name: "summary", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "What was accomplished"},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			summary, _ := args.String("summary")
			return command.GoalComplete(summary), nil
		},
	}
}

func askUserCommand(t *terminal) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "ask_user",
			Description: "Ask the user a question and wait for a one-line answer.",
			Params: []command.Param{
				{Name: "message", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "The question"},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			msg, _ := args.String("message")
			answer, err := t.ask(ctx, msg)
			switch {
			case err == nil:
				return command.Success(answer), nil
			case errors.Is(err, io.EOF):
				return command.Failuref("no answer: input closed"), nil
			case ctx.Err() != nil:
				return command.Failuref("no answer before timeout"), nil
			}
			return command.Result{}, err
		},
	}
}

func sendMessageCommand(t *terminal) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "send_message",
			Description: "Show a message to the user without waiting for a reply.",
			Params: []command.Param{
				{Name: "message", Type: command.TypeString, Required: true, Description: "Message text"},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			msg, _ := args.String("message")
			if err := t.say(msg); err != nil {
				return command.Result{}, err
			}
			return command.Success("message sent"), nil
		},
	}
}
