//go:build unix

package plugin

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setPlatformProcAttr puts the plugin in its own process group so Stop can
// reach any helper processes it forks, not just the immediate child.
func setPlatformProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the process group led by pid.
func terminateGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGTERM)
}
