package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const maxInstructionBytes = 32 * 1024

// instructionFiles are loaded from every directory between the repository
// root and the workspace.
var instructionFiles = []string{"AGENTS.md", "THINKLOOP.md"}

// EnvironmentBlock describes where the agent runs. The date is taken from now
// so a given builder keeps rendering identical prompts.
func EnvironmentBlock(workDir, model string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("ENVIRONMENT:\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workDir)
	if root := gitRoot(workDir); root != "" {
		sb.WriteString("Is git repository: true\n")
		if branch := gitOutput(root, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	} else {
		sb.WriteString("Is git repository: false\n")
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", now.Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ProjectInstructions loads instruction files from the git root (or workDir)
// down to workDir, capped at 32KB in total. It returns "" when none exist.
func ProjectInstructions(workDir string) string {
	root := gitRoot(workDir)
	if root == "" {
		root = workDir
	}

	var docs []string
	total := 0
	for _, dir := range pathHierarchy(root, workDir) {
		for _, name := range instructionFiles {
			content, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			remaining := maxInstructionBytes - total
			if remaining <= 0 {
				docs = append(docs, "[project instructions truncated at 32KB]")
				return strings.Join(docs, "\n\n---\n\n")
			}
			text := string(content)
			if len(text) > remaining {
				text = text[:remaining] + "\n[project instructions truncated at 32KB]"
			}
			docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", name, dir, text))
			total += len(text)
		}
	}
	if len(docs) == 0 {
		return ""
	}
	return "PROJECT INSTRUCTIONS:\n" + strings.Join(docs, "\n\n---\n\n")
}

// ComposePreamble joins the default preamble with extra non-empty blocks.
func ComposePreamble(blocks ...string) string {
	parts := []string{defaultPreamble}
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n")
}

// pathHierarchy returns directories from root down to target, inclusive.
// A target outside root yields just root.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	dirs := []string{root}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(dir string) string {
	return gitOutput(dir, "rev-parse", "--show-toplevel")
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
