// Package builtin provides the standard command catalog: workspace file
// access, an optional shell, web search, user interaction and the
// task_complete terminator.
package builtin

import (
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/thinkloop/command"
)

const (
	DefaultReadLimit    = 2000
	DefaultShellTimeout = 30 * time.Second
	MaxShellTimeout     = 10 * time.Minute
	DefaultSearchURL    = "https://html.duckduckgo.com/html/"
	DefaultSearchCount  = 5
)

// Options configures the catalog.
type Options struct {
	// Workspace confines the file commands. Nil disables them.
	Workspace *Workspace
	// AllowShell registers run_shell. It also requires a Workspace.
	AllowShell      bool
	ShellTimeout    time.Duration
	MaxShellTimeout time.Duration

	// SearchURL is the DuckDuckGo HTML endpoint; empty disables web_search.
	SearchURL  string
	HTTPClient *http.Client

	// Input and Output back ask_user and send_message. Nil disables both.
	Input  io.Reader
	Output io.Writer

	Logger *zap.Logger
}

// DefaultOptions returns options for a workspace at root talking to the
// terminal.
func DefaultOptions(ws *Workspace) Options {
	return Options{
		Workspace:       ws,
		ShellTimeout:    DefaultShellTimeout,
		MaxShellTimeout: MaxShellTimeout,
		SearchURL:       DefaultSearchURL,
		Input:           os.Stdin,
		Output:          os.Stdout,
	}
}

// Register adds every command enabled by opts to reg. echo,
// conversation_history and task_complete are always registered.
func Register(reg *command.Registry, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ShellTimeout <= 0 {
		opts.ShellTimeout = DefaultShellTimeout
	}
	if opts.MaxShellTimeout < opts.ShellTimeout {
		opts.MaxShellTimeout = opts.ShellTimeout
	}

	cmds := []command.Command{echoCommand(), historyCommand(), taskCompleteCommand()}
	if opts.Workspace != nil {
		cmds = append(cmds,
			readFileCommand(opts.Workspace),
			writeFileCommand(opts.Workspace, opts.Logger),
			listFilesCommand(opts.Workspace),
			searchFilesCommand(opts.Workspace),
		)
		if opts.AllowShell {
			cmds = append(cmds, shellCommand(opts.Workspace, opts.ShellTimeout, opts.MaxShellTimeout, opts.Logger))
		}
	}
	if opts.SearchURL != "" {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 20 * time.Second}
		}
		cmds = append(cmds, webSearchCommand(client, opts.SearchURL, opts.Logger))
	}
	if opts.Input != nil && opts.Output != nil {
		t := newTerminal(opts.Input, opts.Output)
		cmds = append(cmds, askUserCommand(t), sendMessageCommand(t))
	}

	for _, cmd := range cmds {
		if err := reg.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}
