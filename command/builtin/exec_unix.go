//go:build unix

package builtin

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCmd runs command under /bin/sh in its own process group, so
// cancellation kills the children too.
func shellCmd(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd
}
