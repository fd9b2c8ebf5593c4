package capture

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrStartup matches failures to launch the preprocessor.
	ErrStartup = errors.New("preprocessor failed to start")
	// ErrStream matches failures reading the preprocessor's standard output.
	ErrStream = errors.New("preprocessor output stream failed")
	// ErrCanceled matches invocations cut short by their context or deadline.
	ErrCanceled = errors.New("preprocessor invocation canceled")
)

// StartupError reports that the child process could not be started:
// missing executable, permission denied or an OS-level spawn failure.
type StartupError struct {
	Argv []string
	Err  error
}

func (e *StartupError) Error() string {
	if e == nil {
		return "<nil>"
	}
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	return fmt.Sprintf("starting %s: %v", name, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

func (e *StartupError) Is(target error) bool { return target == ErrStartup }

// NotFound reports whether the executable could not be resolved.
func (e *StartupError) NotFound() bool {
	return errors.Is(e.Err, exec.ErrNotFound)
}

// Permission reports whether the spawn was refused for lack of permission.
func (e *StartupError) Permission() bool {
	return isPermissionErr(e.Err)
}

// StreamError reports an I/O failure while draining the child's
// standard output. Text holds whatever was read before the failure.
type StreamError struct {
	Text string
	Err  error
}

func (e *StreamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("reading preprocessor output: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

func (e *StreamError) Is(target error) bool { return target == ErrStream }

func canceled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// Describe renders err as a single line for tool output, naming the
// failure kind.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	var se *StartupError
	switch {
	case errors.As(err, &se):
		b.WriteString("startup failure: ")
		switch {
		case se.NotFound():
			b.WriteString("executable not found: ")
		case se.Permission():
			b.WriteString("permission denied: ")
		}
	case errors.Is(err, ErrStream):
		b.WriteString("stream failure: ")
	case errors.Is(err, ErrCanceled):
		b.WriteString("canceled: ")
	}
	b.WriteString(err.Error())
	return b.String()
}
