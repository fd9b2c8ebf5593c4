//go:build unix

package capture

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func isPermissionErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, unix.EACCES) || errors.Is(pathErr.Err, unix.EPERM)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, unix.EACCES) || errors.Is(execErr.Err, unix.EPERM)
	}
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM)
}

// setProcessGroup puts the child in its own process group so a kill
// also reaches the processes it spawns (cpp runs cc1, which inherits
// stdout).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess kills the process group led by p, falling back to p alone
// when it leads no group.
func killProcess(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err == nil {
		return nil
	}
	return p.Kill()
}
