package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/martinemde/thinkloop/agentloop"
	"github.com/martinemde/thinkloop/command"
	"github.com/martinemde/thinkloop/command/builtin"
	"github.com/martinemde/thinkloop/config"
	"github.com/martinemde/thinkloop/store"
	"github.com/martinemde/thinkloop/unifiedllm"
)

// llmFactory builds the decision backend and whatever must be closed after
// the session.
type llmFactory func(cfg config.Config, logger *zap.Logger) (agentloop.LLM, io.Closer, error)

type app struct {
	configPath string

	cfg    config.Config
	logger *zap.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	newLLM llmFactory
	now    func() time.Time
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:     in,
		out:    out,
		errOut: errOut,
		logger: zap.NewNop(),
		newLLM: newCompleter,
		now:    time.Now,
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "thinkloop",
		Short:         "Run an LLM decision loop over a command catalog",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		a.commandsCmd(),
		a.describeCmd(),
		a.promptCmd(),
		a.runCmd(),
		a.sessionsCmd(),
		a.showCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.BuildLogger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// registry builds the built-in catalog described by the workspace section.
func (a *app) registry() (*command.Registry, error) {
	ws, err := builtin.NewWorkspace(a.cfg.Workspace.Root)
	if err != nil {
		return nil, err
	}
	opts := builtin.DefaultOptions(ws)
	opts.AllowShell = a.cfg.Workspace.AllowShell
	opts.ShellTimeout = a.cfg.Workspace.ShellTimeout
	opts.SearchURL = a.cfg.Workspace.SearchURL
	opts.Logger = a.logger.Named("command")
	if a.cfg.Workspace.Interactive {
		// stdout is reserved for the outcome, which may be JSON or YAML.
		opts.Input, opts.Output = a.in, a.errOut
	} else {
		opts.Input, opts.Output = nil, nil
	}

	reg := command.NewRegistry()
	if err := builtin.Register(reg, opts); err != nil {
		return nil, err
	}
	return reg, nil
}

// preamble opens every decision prompt with the environment and any project
// instructions found under the workspace.
func (a *app) preamble() string {
	root := a.cfg.Workspace.Root
	blocks := []string{agentloop.EnvironmentBlock(root, a.cfg.LLM.Model, a.now())}
	if a.cfg.Workspace.Instructions {
		blocks = append(blocks, agentloop.ProjectInstructions(root))
	}
	return agentloop.ComposePreamble(blocks...)
}

func (a *app) sessionConfig() agentloop.SessionConfig {
	sc := a.cfg.SessionConfig()
	sc.Preamble = a.preamble()
	return sc
}

func (a *app) promptBuilder(reg *command.Registry) *agentloop.PromptBuilder {
	sc := a.sessionConfig()
	return agentloop.NewPromptBuilder(reg,
		agentloop.WithPreamble(sc.Preamble),
		agentloop.WithHistoryWindow(sc.HistoryWindow),
		agentloop.WithOutputLimit(sc.OutputLimit),
		agentloop.WithOutputLines(sc.OutputLines),
		agentloop.WithLoopWindow(sc.LoopWindow),
	)
}

var errNoStore = errors.New("no session store configured (set store.path or THINKLOOP_STORE_PATH)")

// openStore opens the configured store, or returns nil when persistence is
// disabled.
func (a *app) openStore() (*store.Store, error) {
	if a.cfg.Store.Path == "" {
		return nil, nil
	}
	s, err := store.Open(a.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", a.cfg.Store.Path, err)
	}
	return s, nil
}

func (a *app) requireStore() (*store.Store, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errNoStore
	}
	return s, nil
}

// newCompleter wires the configured adapter into a unifiedllm client with
// logging and optional rate limiting.
func newCompleter(cfg config.Config, logger *zap.Logger) (agentloop.LLM, io.Closer, error) {
	var adapter unifiedllm.ProviderAdapter
	switch cfg.LLM.Adapter {
	case "gollm":
		ga, err := unifiedllm.NewGollmAdapter(cfg.LLM.Provider, cfg.LLM.APIKey,
			unifiedllm.WithModel(cfg.LLM.Model),
			unifiedllm.WithMaxTokens(cfg.LLM.MaxTokens),
			unifiedllm.WithTemperature(cfg.LLM.Temperature),
		)
		if err != nil {
			return nil, nil, err
		}
		adapter = ga
	default:
		adapter = unifiedllm.NewOpenAIAdapter(cfg.LLM.APIKey,
			unifiedllm.WithOpenAIName(cfg.LLM.Provider),
			unifiedllm.WithBaseURL(cfg.LLM.BaseURL),
			unifiedllm.WithOpenAIModel(cfg.LLM.Model),
		)
	}

	var mws []unifiedllm.Middleware
	if cfg.LLM.RateLimit > 0 {
		mws = append(mws, unifiedllm.RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.LLM.RateLimit), cfg.LLM.Burst)))
	}
	mws = append(mws, unifiedllm.LoggingMiddleware(logger.Named("llm")))

	client := unifiedllm.NewClient(
		unifiedllm.WithProvider(adapter.Name(), adapter),
		unifiedllm.WithDefaultProvider(adapter.Name()),
		unifiedllm.WithMiddleware(mws...),
	)
	return unifiedllm.NewCompleter(client, cfg.CompleterOptions()), client, nil
}
