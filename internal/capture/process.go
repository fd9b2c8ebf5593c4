package capture

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
)

// child is a started preprocessor and the read end of its stdout. Both
// pipes are created here rather than by exec.Cmd so that every
// descriptor is closed on every path, including a failed Start.
type child struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	// killed is set before the context kill is sent.
	killed atomic.Bool
	// interrupted is set before stdout is closed because ctx ended.
	interrupted atomic.Bool
	// release unregisters the close-on-cancel hook. It reports whether
	// the hook had not run yet.
	release func() bool
}

// startChild runs argv in dir with stdin at end-of-file. When ctx ends
// the process group is killed and the stdout reader is closed, so a
// grandchild holding stdout cannot keep the read open.
func startChild(ctx context.Context, dir string, argv []string) (*child, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdinR.Close()
		_ = stdinW.Close()
		return nil, err
	}

	ch := &child{stdout: stdoutR}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		ch.killed.Store(true)
		return killProcess(cmd.Process)
	}
	ch.cmd = cmd

	err = cmd.Start()

	// The child owns its copies now; nothing is ever written to its stdin.
	_ = stdinR.Close()
	_ = stdoutW.Close()
	_ = stdinW.Close()
	if err != nil {
		_ = stdoutR.Close()
		return nil, err
	}

	ch.release = context.AfterFunc(ctx, func() {
		ch.interrupted.Store(true)
		_ = stdoutR.Close()
	})
	return ch, nil
}

// finish unregisters the cancel hook and closes stdout.
func (ch *child) finish() {
	if ch.release != nil {
		ch.release()
	}
	_ = ch.stdout.Close()
}

// kill kills the child's process group, ignoring a child that is
// already gone.
func (ch *child) kill() error {
	if ch.cmd.Process == nil {
		return nil
	}
	return killProcess(ch.cmd.Process)
}
