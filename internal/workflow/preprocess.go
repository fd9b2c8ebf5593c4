package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/deixis/cpptext/internal/capture"
	"github.com/deixis/cpptext/internal/report"
	"golang.org/x/sync/errgroup"
)

// exitWait bounds how long a settled run waits for its exit status.
const exitWait = 5 * time.Second

// ErrNoFiles is returned by Preprocess when called without paths.
var ErrNoFiles = errors.New("no files to preprocess")

// FileResult is the outcome of preprocessing one file.
type FileResult struct {
	Record  *report.Record
	Outcome capture.Outcome
}

// Preprocess runs one independent invocation per path, at most
// Config.Workers() at a time. A failing path never affects another.
// Results are returned in the order of paths and every result is saved
// to the store.
func (e *Engine) Preprocess(ctx context.Context, paths []string) ([]FileResult, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}

	results := make([]FileResult, len(paths))
	var g errgroup.Group
	g.SetLimit(e.Config.Workers())
	for i, p := range paths {
		g.Go(func() error {
			results[i] = e.preprocessOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// PreprocessFile is Preprocess for a single path.
func (e *Engine) PreprocessFile(ctx context.Context, path string) FileResult {
	return e.preprocessOne(ctx, path)
}

func (e *Engine) preprocessOne(ctx context.Context, path string) FileResult {
	started := time.Now()
	inv := e.Capture.Invoke(ctx, path)
	out := inv.Wait()

	// The outcome does not depend on the exit status; don't let a child
	// that closed stdout but keeps running hold up the record.
	exitCtx, cancel := context.WithTimeout(ctx, exitWait)
	code, err := inv.ExitCode(exitCtx)
	cancel()
	if err != nil {
		e.log().Debug("run %s: exit status unavailable: %v", inv.RunID, err)
	}

	rec := &report.Record{
		ID:       out.RunID,
		Path:     path,
		Argv:     inv.Argv,
		Status:   report.Success,
		Text:     out.Text,
		ExitCode: code,
		Started:  started.UTC(),
		Duration: time.Since(started),
	}
	if out.Err != nil {
		rec.Status = report.Failure
		rec.Error = capture.Describe(out.Err)
		e.log().Warn("%s: %s", filepath.Base(path), rec.Error)
	} else if code != 0 {
		e.log().Debug("%s: preprocessor exited with code %d", filepath.Base(path), code)
	}

	if e.Store != nil {
		if err := e.Store.Save(rec); err != nil {
			e.log().Warn("saving run %s: %v", rec.ID, err)
		}
	}
	return FileResult{Record: rec, Outcome: out}
}

// Failed reports whether any result failed.
func Failed(results []FileResult) bool {
	for _, r := range results {
		if !r.Outcome.OK() {
			return true
		}
	}
	return false
}
