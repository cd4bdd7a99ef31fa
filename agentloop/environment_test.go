package agentloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentBlock(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	block := EnvironmentBlock(dir, "llama3.1", now)
	assert.True(t, strings.HasPrefix(block, "ENVIRONMENT:\n"))
	assert.Contains(t, block, "Working directory: "+dir)
	assert.Contains(t, block, "Today's date: 2026-03-14")
	assert.Contains(t, block, "Model: llama3.1")
	assert.Equal(t, block, EnvironmentBlock(dir, "llama3.1", now))
}

func TestProjectInstructions(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, ProjectInstructions(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("Always run tests."), 0o644))
	got := ProjectInstructions(dir)
	assert.True(t, strings.HasPrefix(got, "PROJECT INSTRUCTIONS:\n# AGENTS.md"))
	assert.Contains(t, got, "Always run tests.")

	big := strings.Repeat("x", maxInstructionBytes+10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "THINKLOOP.md"), []byte(big), 0o644))
	got = ProjectInstructions(dir)
	assert.Contains(t, got, "[project instructions truncated at 32KB]")
}

func TestPathHierarchy(t *testing.T) {
	root := filepath.Join("/", "repo")
	assert.Equal(t, []string{root}, pathHierarchy(root, root))
	assert.Equal(t,
		[]string{root, filepath.Join(root, "a"), filepath.Join(root, "a", "b")},
		pathHierarchy(root, filepath.Join(root, "a", "b")))
	assert.Equal(t, []string{root}, pathHierarchy(root, filepath.Join("/", "elsewhere")))
}

func TestComposePreamble(t *testing.T) {
	assert.Equal(t, defaultPreamble, ComposePreamble())
	assert.Equal(t, defaultPreamble+"\n\nENV", ComposePreamble("", "  ENV\n"))
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("s1", 1)
	e.Emit(EventSessionStart, 0, nil)
	e.Emit(EventStateChange, 1, nil)
	assert.Equal(t, 1, e.Dropped())

	e.Close()
	e.Close()
	e.Emit(EventSessionEnd, 1, nil)

	var kinds []EventKind
	for ev := range e.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventSessionStart}, kinds)
}
