package builtin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrOutsideWorkspace is returned for a path that resolves outside the
// workspace root.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// ExecResult holds the result of a shell command.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// GrepOptions configures Grep.
type GrepOptions struct {
	Glob            string
	CaseInsensitive bool
	MaxResults      int
}

// Workspace confines file and shell commands to a root directory.
type Workspace struct {
	root string
	real string // root with symlinks resolved
}

// NewWorkspace creates a workspace rooted at root. An empty root means the
// current directory.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{root: abs, real: real}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a workspace-relative path to an absolute one. Absolute paths
// are accepted when they fall inside the root. Symlinks are followed, so a
// link pointing out of the root is rejected like a "../" path.
func (w *Workspace) Resolve(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	p = filepath.Clean(p)
	if !within(w.root, p) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideWorkspace)
	}
	real, ok := resolveExisting(p)
	if !ok || !within(w.real, real) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideWorkspace)
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting follows symlinks through the deepest existing ancestor of
// p and appends the components that do not exist yet. A dangling symlink
// reports false.
func resolveExisting(p string) (string, bool) {
	var missing []string
	for cur := p; ; {
		if real, err := filepath.EvalSymlinks(cur); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				real = filepath.Join(real, missing[i])
			}
			return real, true
		}
		if fi, err := os.Lstat(cur); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
			return "", false
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

// relPath resolves path and returns it relative to the root, for use with
// an os.Root.
func (w *Workspace) relPath(path string) (string, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	return filepath.Rel(w.root, resolved)
}

func (w *Workspace) rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// ReadFile returns line-numbered content starting at the 1-based offset. A
// non-positive limit reads to the end.
func (w *Workspace) ReadFile(path string, offset, limit int) (string, error) {
	rel, err := w.relPath(path)
	if err != nil {
		return "", err
	}
	root, err := os.OpenRoot(w.root)
	if err != nil {
		return "", err
	}
	defer root.Close()
	f, err := root.Open(rel)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// WriteFile writes content, creating parent directories. All file system
// access goes through an os.Root so a symlink swapped in after Resolve still
// cannot redirect the write.
func (w *Workspace) WriteFile(path, content string) error {
	rel, err := w.relPath(path)
	if err != nil {
		return err
	}
	root, err := os.OpenRoot(w.root)
	if err != nil {
		return err
	}
	defer root.Close()
	if err := mkdirAll(root, filepath.Dir(rel)); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := root.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mkdirAll(root *os.Root, dir string) error {
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := mkdirAll(root, filepath.Dir(dir)); err != nil {
		return err
	}
	if err := root.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

// Glob matches pattern under dir and returns workspace-relative paths.
func (w *Workspace) Glob(pattern, dir string) ([]string, error) {
	base, err := w.Resolve(dir)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(base, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, err := w.Resolve(m); err != nil {
			continue
		}
		out = append(out, w.rel(m))
	}
	return out, nil
}

// Grep searches files under dir for a regular expression. It uses ripgrep
// when installed and a built-in walker otherwise. Lines are "path:line:text".
func (w *Workspace) Grep(ctx context.Context, pattern, dir string, opts GrepOptions) (string, error) {
	base, err := w.Resolve(dir)
	if err != nil {
		return "", err
	}
	if rg, err := exec.LookPath("rg"); err == nil {
		return w.ripgrep(ctx, rg, pattern, base, opts)
	}
	return w.walkGrep(ctx, pattern, base, opts)
}

func (w *Workspace) ripgrep(ctx context.Context, rg, pattern, base string, opts GrepOptions) (string, error) {
	args := []string{"--line-number", "--no-heading", "--color", "never"}
	if opts.CaseInsensitive {
		args = append(args, "-i")
	}
	if opts.Glob != "" {
		args = append(args, "--glob", opts.Glob)
	}
	// An explicit path keeps rg from reading stdin.
	args = append(args, "-e", pattern, w.rel(base))

	cmd := exec.CommandContext(ctx, rg, args...)
	cmd.Dir = w.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		// Exit status 1 means no matches.
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return "", fmt.Errorf("rg: %v: %s", err, strings.TrimSpace(stderr.String()))
		}
	}
	return limitLines(stdout.String(), opts.MaxResults), nil
}

func (w *Workspace) walkGrep(ctx context.Context, pattern, base string, opts GrepOptions) (string, error) {
	if opts.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	var sb strings.Builder
	count := 0
	errLimit := errors.New("limit reached")
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if opts.Glob != "" {
			if ok, _ := filepath.Match(opts.Glob, d.Name()); !ok {
				return nil
			}
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for n := 1; scanner.Scan(); n++ {
			line := scanner.Text()
			if !re.MatchString(line) {
				continue
			}
			sb.WriteString(w.rel(path) + ":" + strconv.Itoa(n) + ":" + line + "\n")
			count++
			if opts.MaxResults > 0 && count >= opts.MaxResults {
				return errLimit
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return "", err
	}
	return sb.String(), nil
}

func limitLines(s string, max int) string {
	if max <= 0 {
		return s
	}
	lines := strings.SplitAfter(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "")
}

// Exec runs command through the shell in the workspace root with a filtered
// environment. A timeout kills the whole process group and is reported in
// the result, not as an error.
func (w *Workspace) Exec(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := shellCmd(ctx, command)
	cmd.Dir = w.root
	cmd.Env = filterEnvironment()
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("exec: %w", err)
		}
	}
	return result, nil
}

// sensitiveEnvSuffixes mark environment variables withheld from shell
// commands.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || isSensitiveEnvVar(name) {
			continue
		}
		filtered = append(filtered, kv)
	}
	return filtered
}
