// Package config loads thinkloop settings from a YAML file and THINKLOOP_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/thinkloop/agentloop"
	"github.com/martinemde/thinkloop/unifiedllm"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "THINKLOOP_"

// Config is the complete configuration.
type Config struct {
	LLM       LLM       `yaml:"llm" envPrefix:"LLM_"`
	Loop      Loop      `yaml:"loop" envPrefix:"LOOP_"`
	Workspace Workspace `yaml:"workspace" envPrefix:"WORKSPACE_"`
	Logging   Logging   `yaml:"logging" envPrefix:"LOG_"`
	Store     Store     `yaml:"store" envPrefix:"STORE_"`
	Telemetry Telemetry `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// LLM selects and tunes the model backend.
type LLM struct {
	// Adapter is "openai" for any OpenAI-compatible endpoint (Ollama, vLLM,
	// OpenAI) or "gollm" for the providers gollm supports.
	Adapter     string        `yaml:"adapter" env:"ADAPTER" validate:"oneof=openai gollm"`
	Provider    string        `yaml:"provider" env:"PROVIDER" validate:"required"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	Model       string        `yaml:"model" env:"MODEL" validate:"required"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS" validate:"gte=1"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=0,lte=10"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY" validate:"gt=0"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"MAX_DELAY" validate:"gtefield=BaseDelay"`
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT" validate:"gte=0"`
	Burst     int     `yaml:"burst" env:"BURST" validate:"gte=1"`
}

// Loop tunes the decision loop.
type Loop struct {
	Budget         int           `yaml:"budget" env:"BUDGET" validate:"gte=1"`
	ParseRetries   int           `yaml:"parse_retries" env:"PARSE_RETRIES" validate:"gte=0,lte=10"`
	LLMTimeout     time.Duration `yaml:"llm_timeout" env:"LLM_TIMEOUT" validate:"gte=0"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT" validate:"gte=0"`
	AbortOnFault   bool          `yaml:"abort_on_fault" env:"ABORT_ON_FAULT"`
	HistoryWindow  int           `yaml:"history_window" env:"HISTORY_WINDOW" validate:"gte=0"`
	OutputLimit    int           `yaml:"output_limit" env:"OUTPUT_LIMIT" validate:"gte=0"`
	OutputLines    int           `yaml:"output_lines" env:"OUTPUT_LINES" validate:"gte=0"`
	LoopWindow     int           `yaml:"loop_window" env:"LOOP_WINDOW" validate:"gte=0"`
}

// Workspace controls the built-in commands.
type Workspace struct {
	Root         string        `yaml:"root" env:"ROOT" validate:"required"`
	AllowShell   bool          `yaml:"allow_shell" env:"ALLOW_SHELL"`
	ShellTimeout time.Duration `yaml:"shell_timeout" env:"SHELL_TIMEOUT" validate:"gt=0"`
	// SearchURL is the DuckDuckGo HTML endpoint; empty disables web_search.
	SearchURL string `yaml:"search_url" env:"SEARCH_URL" validate:"omitempty,url"`
	// Interactive registers ask_user and send_message on the terminal.
	Interactive bool `yaml:"interactive" env:"INTERACTIVE"`
	// Instructions adds AGENTS.md / THINKLOOP.md files to the prompt.
	Instructions bool `yaml:"instructions" env:"INSTRUCTIONS"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=console json"`
	// File receives log output instead of stderr when set.
	File string `yaml:"file" env:"FILE"`
}

// Store configures transcript persistence.
type Store struct {
	// Path of the SQLite database; empty disables persistence.
	Path string `yaml:"path" env:"PATH"`
}

// Telemetry configures metrics and tracing.
type Telemetry struct {
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" validate:"required"`
	// MetricsAddr serves /metrics when set, e.g. ":9464".
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR" validate:"omitempty,hostname_port"`
	// OTLPEndpoint enables OTLP/HTTP trace export. OTEL_EXPORTER_OTLP_ENDPOINT
	// is used when empty.
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRatio  float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// Default returns the built-in configuration: a local Ollama model through
// its OpenAI-compatible API.
func Default() Config {
	retry := unifiedllm.DefaultRetryPolicy()
	session := agentloop.DefaultSessionConfig()
	return Config{
		LLM: LLM{
			Adapter:     "openai",
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434/v1",
			Model:       "llama3.1:8b-instruct-q8_0",
			Temperature: 0.2,
			MaxTokens:   2048,
			Timeout:     2 * time.Minute,
			MaxRetries:  retry.MaxRetries,
			BaseDelay:   retry.BaseDelay,
			MaxDelay:    retry.MaxDelay,
			Burst:       1,
		},
		Loop: Loop{
			Budget:         25,
			ParseRetries:   session.ParseRetries,
			LLMTimeout:     session.LLMTimeout,
			CommandTimeout: session.CommandTimeout,
			HistoryWindow:  session.HistoryWindow,
			OutputLimit:    session.OutputLimit,
			OutputLines:    session.OutputLines,
			LoopWindow:     session.LoopWindow,
		},
		Workspace: Workspace{
			Root:         ".",
			ShellTimeout: 30 * time.Second,
			SearchURL:    "https://html.duckduckgo.com/html/",
			Interactive:  true,
			Instructions: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Telemetry: Telemetry{
			ServiceName: "thinkloop",
			SampleRatio: 1,
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults without reading the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeYAML(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg with THINKLOOP_* variables, e.g. THINKLOOP_LLM_MODEL
// or THINKLOOP_LOOP_BUDGET.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// fieldPath trims the root type from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// SessionConfig maps the loop section onto agentloop settings.
func (c Config) SessionConfig() agentloop.SessionConfig {
	sc := agentloop.DefaultSessionConfig()
	sc.ParseRetries = c.Loop.ParseRetries
	sc.LLMTimeout = c.Loop.LLMTimeout
	sc.CommandTimeout = c.Loop.CommandTimeout
	sc.AbortOnFault = c.Loop.AbortOnFault
	sc.HistoryWindow = c.Loop.HistoryWindow
	sc.OutputLimit = c.Loop.OutputLimit
	sc.OutputLines = c.Loop.OutputLines
	sc.LoopWindow = c.Loop.LoopWindow
	return sc
}

// RetryPolicy maps the llm section onto the client retry policy.
func (c Config) RetryPolicy() unifiedllm.RetryPolicy {
	p := unifiedllm.DefaultRetryPolicy()
	p.MaxRetries = c.LLM.MaxRetries
	p.BaseDelay = c.LLM.BaseDelay
	p.MaxDelay = c.LLM.MaxDelay
	return p
}

// CompleterOptions maps the llm section onto completer options.
func (c Config) CompleterOptions() unifiedllm.CompleterOptions {
	temp := c.LLM.Temperature
	maxTokens := c.LLM.MaxTokens
	return unifiedllm.CompleterOptions{
		Model:       unifiedllm.ResolveModel(c.LLM.Model),
		Provider:    c.LLM.Provider,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Retry:       c.RetryPolicy(),
		Timeout:     c.LLM.Timeout,
	}
}
