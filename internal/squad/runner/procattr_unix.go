//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs the command in its own process group so a timeout kill
// reaches every child the squad command spawned.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the whole process group led by pid.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
