package builtin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/martinemde/thinkloop/command"
)

// fileFailure turns expected filesystem errors into failure results; anything
// else is a fault.
func fileFailure(err error) (command.Result, error) {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission), errors.Is(err, ErrOutsideWorkspace):
		return command.Failure(err), nil
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return command.Failure(err), nil
	}
	return command.Result{}, err
}

func readFileCommand(ws *Workspace) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "read_file",
			Description: "Read a text file from the workspace. Returns line-numbered content.",
			Params: []command.Param{
				{Name: "path", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "Path relative to the workspace"},
				{Name: "offset", Type: command.TypeInteger, Constraint: "min=1", Description: "1-based line to start from"},
				{Name: "limit", Type: command.TypeInteger, Constraint: "min=1", Description: fmt.Sprintf("Maximum lines to read (default %d)", DefaultReadLimit)},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			path, _ := args.String("path")
			content, err := ws.ReadFile(path, args.IntOr("offset", 1), args.IntOr("limit", DefaultReadLimit))
			if err != nil {
				return fileFailure(err)
			}
			if content == "" {
				return command.Success("(empty)"), nil
			}
			return command.Success(content), nil
		},
	}
}

func writeFileCommand(ws *Workspace, logger *zap.Logger) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "write_file",
			Description: "Write content to a workspace file, replacing it. Parent directories are created.",
			Params: []command.Param{
				{Name: "path", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "Path relative to the workspace"},
				{Name: "content", Type: command.TypeString, Required: true, Description: "Full file content"},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			path, _ := args.String("path")
			content, _ := args.String("content")
			if err := ws.WriteFile(path, content); err != nil {
				return fileFailure(err)
			}
			logger.Debug("file written", zap.String("path", path), zap.Int("bytes", len(content)))
			return command.Success(fmt.Sprintf("wrote %d bytes to %s", len(content), path)), nil
		},
	}
}

func listFilesCommand(ws *Workspace) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "list_files",
			Description: "List workspace files matching a glob pattern such as *.go.",
			Params: []command.Param{
				{Name: "pattern", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "Glob pattern"},
				{Name: "path", Type: command.TypeString, Description: "Directory to search from (default: workspace root)"},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			pattern, _ := args.String("pattern")
			matches, err := ws.Glob(pattern, args.StringOr("path", "."))
			if err != nil {
				return command.Failure(err), nil
			}
			if len(matches) == 0 {
				return command.Success("no files match " + pattern), nil
			}
			return command.Success(strings.Join(matches, "\n")), nil
		},
	}
}

func searchFilesCommand(ws *Workspace) command.Command {
	return &command.Func{
		Descriptor: command.Descriptor{
			Name:        "search_files",
			Description: "Search workspace file contents for a regular expression. Returns path:line:text matches.",
			Params: []command.Param{
				{Name: "pattern", Type: command.TypeString, Required: true, Constraint: "min=1", Description: "Regular expression"},
				{Name: "path", Type: command.TypeString, Description: "Directory to search (default: workspace root)"},
				{Name: "glob", Type: command.TypeString, Description: "Only search files matching this glob"},
				{Name: "case_insensitive", Type: command.TypeBoolean, Description: "Ignore case"},
				{Name: "max_results", Type: command.TypeInteger, Constraint: "min=1,max=500", Description: "Maximum matches (default 100)"},
			},
		},
		Handler: func(ctx context.Context, args command.Args, env command.Env) (command.Result, error) {
			pattern, _ := args.String("pattern")
			ci, _ := args.Bool("case_insensitive")
			out, err := ws.Grep(ctx, pattern, args.StringOr("path", "."), GrepOptions{
				Glob:            args.StringOr("glob", ""),
				CaseInsensitive: ci,
				MaxResults:      args.IntOr("max_results", 100),
			})
			if err != nil {
				if ctx.Err() != nil {
					return command.Result{}, err
				}
				return command.Failure(err), nil
			}
			if out == "" {
				return command.Success("no matches"), nil
			}
			return command.Success(out), nil
		},
	}
}
