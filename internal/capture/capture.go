// Package capture runs the C preprocessor on a single file and captures
// its standard output as text. Each invocation is independent: it owns
// one child process, one reader goroutine and one output buffer, and it
// settles exactly once.
package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultCommand is the preprocessor executable used when none is set.
const DefaultCommand = "cpp"

// LineMarkerFlag suppresses "# <line> <file>" markers in cpp output.
const LineMarkerFlag = "-P"

const chunkSize = 32 * 1024

// Logger receives diagnostics. *logger.Logger implements it.
type Logger interface {
	Debug(format string, args ...any)
}

// Capture invokes the preprocessor. The zero value runs DefaultCommand
// with no deadline.
type Capture struct {
	// Command is the executable name or path. Empty means DefaultCommand.
	Command string
	// Dir is the child's working directory. Empty means the current one.
	Dir string
	// Timeout bounds each invocation. Zero means no deadline.
	Timeout time.Duration
	// Log is optional.
	Log Logger
}

// Argv returns the argument vector used for filePath.
func (c *Capture) Argv(filePath string) []string {
	cmd := c.Command
	if cmd == "" {
		cmd = DefaultCommand
	}
	return []string{cmd, LineMarkerFlag, filePath}
}

// Run invokes the preprocessor on filePath and waits for the outcome.
func (c *Capture) Run(ctx context.Context, filePath string) Outcome {
	return c.Invoke(ctx, filePath).Wait()
}

// Invoke starts the preprocessor on filePath and returns immediately.
// The returned Invocation settles once the child's standard output
// reaches end-of-stream, the stream fails, or the child cannot be
// started. Invoke never returns a nil Invocation.
func (c *Capture) Invoke(ctx context.Context, filePath string) *Invocation {
	if ctx == nil {
		ctx = context.Background()
	}
	argv := c.Argv(filePath)
	inv := newInvocation(uuid.New().String(), filePath, argv)

	if err := ctx.Err(); err != nil {
		c.debugf("run %s: not started: %v", inv.RunID, err)
		inv.settle(Outcome{Err: canceled(err)})
		inv.reap(-1)
		return inv
	}

	cancel := context.CancelFunc(func() {})
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
	}

	ch, err := startChild(ctx, c.Dir, argv)
	if err != nil {
		cancel()
		c.startFailed(ctx, inv, err)
		return inv
	}
	c.debugf("run %s: started %s (pid %d)", inv.RunID, strings.Join(argv, " "), ch.cmd.Process.Pid)

	go c.drain(ctx, cancel, ch, inv)
	return inv
}

func (c *Capture) startFailed(ctx context.Context, inv *Invocation, err error) {
	c.debugf("run %s: start failed: %v", inv.RunID, err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		inv.settle(Outcome{Err: canceled(ctxErr)})
	} else {
		inv.settle(Outcome{Err: &StartupError{Argv: inv.Argv, Err: err}})
	}
	inv.reap(-1)
}

// drain reads stdout to the end, settles inv and reaps the child. It is
// the only writer of the invocation's accumulator.
func (c *Capture) drain(ctx context.Context, cancel context.CancelFunc, ch *child, inv *Invocation) {
	defer cancel()

	text, chunks, readErr := collect(ch.stdout, func(n int) {
		c.debugf("run %s: read %d bytes", inv.RunID, n)
	})
	// A kill sets killed before it can cause end-of-stream, so a clean
	// read seen with killed still false holds the complete output.
	killed := ch.killed.Load()
	ch.finish()

	switch {
	case readErr != nil && ch.interrupted.Load():
		inv.settle(Outcome{Text: text, Chunks: chunks, Err: canceled(ctx.Err())})
	case readErr != nil:
		inv.settle(Outcome{Chunks: chunks, Err: &StreamError{Text: text, Err: readErr}})
		if err := ch.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.debugf("run %s: kill: %v", inv.RunID, err)
		}
	case !killed:
		inv.settle(Outcome{Text: text, Chunks: chunks})
	}

	waitErr := ch.cmd.Wait()
	code := exitCodeFrom(waitErr, ch.cmd.ProcessState)
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		c.debugf("run %s: ignoring wait error after settlement: %v", inv.RunID, waitErr)
	}

	// Output ended after a context kill: it is only complete if the child
	// had already exited on its own.
	if killed && readErr == nil {
		if ch.cmd.ProcessState != nil && ch.cmd.ProcessState.Exited() {
			inv.settle(Outcome{Text: text, Chunks: chunks})
		} else {
			inv.settle(Outcome{Text: text, Chunks: chunks, Err: canceled(ctx.Err())})
		}
	}
	c.debugf("run %s: exited with code %d", inv.RunID, code)
	inv.reap(code)
}

func (c *Capture) debugf(format string, args ...any) {
	if c.Log != nil {
		c.Log.Debug(format, args...)
	}
}

// collect reads r until EOF, decoding UTF-8 as it goes. onChunk is called
// with the size of every read that delivered data. On a read error it
// returns the text accumulated so far together with the error.
func collect(r io.Reader, onChunk func(n int)) (string, int, error) {
	dec := transform.NewReader(r, unicode.UTF8.NewDecoder())
	var acc strings.Builder
	buf := make([]byte, chunkSize)
	chunks := 0
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			chunks++
			if onChunk != nil {
				onChunk(n)
			}
		}
		if errors.Is(err, io.EOF) {
			return acc.String(), chunks, nil
		}
		if err != nil {
			return acc.String(), chunks, err
		}
	}
}

func exitCodeFrom(waitErr error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ProcessState != nil {
		return exitErr.ProcessState.ExitCode()
	}
	return -1
}
