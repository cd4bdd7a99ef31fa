//go:build !unix

package builtin

import (
	"context"
	"os/exec"
)

// shellCmd runs command under cmd.exe. Cancellation kills only the shell.
func shellCmd(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd.exe", "/c", command)
}
