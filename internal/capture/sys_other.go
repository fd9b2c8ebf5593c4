//go:build !unix

package capture

import (
	"errors"
	"os"
	"os/exec"
)

func isPermissionErr(err error) bool {
	return errors.Is(err, os.ErrPermission)
}

func setProcessGroup(cmd *exec.Cmd) {}

func killProcess(p *os.Process) error {
	return p.Kill()
}
