//go:build !windows

package task

import (
	"os/exec"
	"syscall"
)

// killTree puts the child in its own process group and makes cancellation
// kill the whole group, so build tools spawned by the child go with it.
func killTree(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid addresses the process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
