// Package report persists preprocessing run records so they can be
// retrieved later by run ID.
package report

import (
	"fmt"
	"time"
)

// Status is the settled state of a run.
type Status string

const (
	// Success means the preprocessor's output was drained to the end.
	Success Status = "success"
	// Failure means the preprocessor could not be started or its output
	// stream failed.
	Failure Status = "failure"
)

// Store persists and retrieves run records.
type Store interface {
	Save(record *Record) error
	Load(runID string) (*Record, error)
}

// Record holds the result of one preprocessor invocation.
type Record struct {
	ID       string        `json:"id"`
	Path     string        `json:"path"`
	Argv     []string      `json:"argv"`
	Status   Status        `json:"status"`
	Text     string        `json:"text,omitempty"`
	ExitCode int           `json:"exit_code"`
	Error    string        `json:"error,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the run ended in failure.
func (r *Record) Failed() bool {
	return r.Status == Failure
}

// Summary returns a one-line description of the record.
func (r *Record) Summary() string {
	if r.Failed() {
		return fmt.Sprintf("%s %s: %s (%s)", r.ID, r.Path, r.Status, r.Error)
	}
	return fmt.Sprintf("%s %s: %s, exit %d, %d bytes in %s", r.ID, r.Path, r.Status, r.ExitCode, len(r.Text), r.Duration.Round(time.Millisecond))
}
