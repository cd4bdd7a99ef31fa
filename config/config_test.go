package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/martinemde/thinkloop/agentloop"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thinkloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "llama3.1:8b-instruct-q8_0", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, agentloop.DefaultSessionConfig(), cfg.SessionConfig())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  adapter: gollm
  provider: anthropic
  model: sonnet
  temperature: 0.7
  timeout: 90s
loop:
  budget: 8
  parse_retries: 2
  abort_on_fault: true
  command_timeout: 10s
  output_lines: 40
workspace:
  root: /tmp/work
  allow_shell: true
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gollm", cfg.LLM.Adapter)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens, "unset fields keep their defaults")
	assert.Equal(t, 8, cfg.Loop.Budget)
	assert.True(t, cfg.Workspace.AllowShell)
	assert.True(t, cfg.Workspace.Interactive)

	sc := cfg.SessionConfig()
	assert.Equal(t, 2, sc.ParseRetries)
	assert.True(t, sc.AbortOnFault)
	assert.Equal(t, 10*time.Second, sc.CommandTimeout)
	assert.Equal(t, 40, sc.OutputLines)

	opts := cfg.CompleterOptions()
	assert.Equal(t, "claude-sonnet-4-5", opts.Model)
	assert.Equal(t, "anthropic", opts.Provider)
	require.NotNil(t, opts.Temperature)
	assert.Equal(t, 0.7, *opts.Temperature)
	assert.Equal(t, 90*time.Second, opts.Timeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "llm:\n  model: qwen\nloop:\n  budget: 8\n")
	t.Setenv("THINKLOOP_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("THINKLOOP_LLM_PROVIDER", "openai")
	t.Setenv("THINKLOOP_LOOP_BUDGET", "3")
	t.Setenv("THINKLOOP_LLM_MAX_DELAY", "1m")
	t.Setenv("THINKLOOP_WORKSPACE_ALLOW_SHELL", "true")
	t.Setenv("THINKLOOP_STORE_PATH", "/tmp/thinkloop.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Loop.Budget)
	assert.Equal(t, time.Minute, cfg.RetryPolicy().MaxDelay)
	assert.True(t, cfg.Workspace.AllowShell)
	assert.Equal(t, "/tmp/thinkloop.db", cfg.Store.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "llm:\n  modle: typo\n"))
	assert.ErrorContains(t, err, "modle")

	t.Setenv("THINKLOOP_LOOP_BUDGET", "lots")
	_, err = Load("")
	assert.ErrorContains(t, err, "config env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero budget", func(c *Config) { c.Loop.Budget = 0 }, `Loop.Budget: failed "gte"`},
		{"unknown adapter", func(c *Config) { c.LLM.Adapter = "grpc" }, `LLM.Adapter: failed "oneof"`},
		{"missing model", func(c *Config) { c.LLM.Model = "" }, `LLM.Model: failed "required"`},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, `LLM.Temperature: failed "lte"`},
		{"max delay below base", func(c *Config) { c.LLM.MaxDelay = time.Millisecond }, `LLM.MaxDelay: failed "gtefield"`},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, `Logging.Level: failed "oneof"`},
		{"bad base url", func(c *Config) { c.LLM.BaseURL = "not a url" }, `LLM.BaseURL: failed "url"`},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, `Telemetry.SampleRatio: failed "lte"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	cfg.Loop.Budget = 0
	cfg.LLM.Model = ""
	err := cfg.Validate()
	assert.ErrorContains(t, err, "Loop.Budget")
	assert.ErrorContains(t, err, "LLM.Model")
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Parse([]byte("loop:\n  budget: -1\n"))
	assert.Error(t, err)
}

func TestBuildLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "thinkloop.log")
	logger, err := Logging{Level: "warn", Format: "json", File: logFile}.BuildLogger()
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	logger.Warn("disk almost full")
	_ = logger.Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"disk almost full"`)

	_, err = Logging{Level: "loud", Format: "console"}.BuildLogger()
	assert.Error(t, err)
}
