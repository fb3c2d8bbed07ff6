//go:build !windows

package shell

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the command and anything it spawned.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil || pgid <= 0 {
		_ = cmd.Process.Kill()
		return
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
}
