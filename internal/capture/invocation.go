package capture

import (
	"context"
	"sync"
)

// Outcome is the settled result of one invocation. A nil Err means
// success and Text holds the complete output; otherwise Err is a
// *StartupError, a *StreamError, or matches ErrCanceled.
type Outcome struct {
	RunID  string
	Path   string
	Text   string
	Chunks int // reads that delivered data
	Err    error
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Invocation is a handle on one running preprocessor. Its outcome is
// assigned once and never changes afterwards.
type Invocation struct {
	RunID string
	Path  string
	Argv  []string

	once    sync.Once
	done    chan struct{}
	outcome Outcome

	reaped   chan struct{}
	exitCode int
}

func newInvocation(runID, path string, argv []string) *Invocation {
	return &Invocation{
		RunID:  runID,
		Path:   path,
		Argv:   argv,
		done:   make(chan struct{}),
		reaped: make(chan struct{}),
	}
}

// settle records o as the outcome if none has been recorded yet. It
// reports whether o was the one recorded.
func (inv *Invocation) settle(o Outcome) bool {
	won := false
	inv.once.Do(func() {
		o.RunID = inv.RunID
		o.Path = inv.Path
		inv.outcome = o
		won = true
		close(inv.done)
	})
	return won
}

// reap records the exit code of the child. Called once, after Wait.
func (inv *Invocation) reap(code int) {
	inv.exitCode = code
	close(inv.reaped)
}

// Done is closed once the outcome is settled.
func (inv *Invocation) Done() <-chan struct{} {
	return inv.done
}

// Wait blocks until the invocation settles and returns its outcome.
// It may be called any number of times.
func (inv *Invocation) Wait() Outcome {
	<-inv.done
	return inv.outcome
}

// WaitContext is like Wait but gives up when ctx is done, returning an
// Outcome whose Err is ctx.Err(). Giving up does not stop the child.
func (inv *Invocation) WaitContext(ctx context.Context) Outcome {
	select {
	case <-inv.done:
		return inv.outcome
	case <-ctx.Done():
		return Outcome{RunID: inv.RunID, Path: inv.Path, Err: ctx.Err()}
	}
}

// ExitCode waits until the child has been reaped and returns its exit
// code, or -1 if it never started or was killed by a signal. A non-zero
// code does not make the outcome a failure.
func (inv *Invocation) ExitCode(ctx context.Context) (int, error) {
	select {
	case <-inv.reaped:
		return inv.exitCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}
