// Package workflow runs the preprocessor over sets of files. It is
// consumed by both the MCP server and the CLI commands.
package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/deixis/cpptext/internal/capture"
	"github.com/deixis/cpptext/internal/config"
	"github.com/deixis/cpptext/internal/logger"
	"github.com/deixis/cpptext/internal/report"
)

// Invoker starts one preprocessor invocation.
// Implemented by capture.Capture.
type Invoker interface {
	Invoke(ctx context.Context, filePath string) *capture.Invocation
}

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config  *config.Config
	Capture Invoker
	Store   report.Store
	Log     *logger.Logger
}

// New builds an Engine whose capture settings come from cfg.
func New(cfg *config.Config, dir string, store report.Store, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		Config: cfg,
		Capture: &capture.Capture{
			Command: cfg.PreprocessorCommand(),
			Dir:     dir,
			Timeout: cfg.Timeout(),
			Log:     log,
		},
		Store: store,
		Log:   log,
	}
}

func (e *Engine) log() *logger.Logger {
	if e.Log == nil {
		return logger.Discard()
	}
	return e.Log
}

// ResolveTool returns the absolute path of the named executable on PATH,
// or ErrToolUnavailable.
func ResolveTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", NewErrToolUnavailable(name)
	}
	return path, nil
}

// toolInfo holds install hints for a known preprocessor.
type toolInfo struct {
	Debian string
	Brew   string
	Note   string
}

var knownTools = map[string]toolInfo{
	"cpp":   {Debian: "apt install cpp", Brew: "brew install gcc", Note: "cpp ships with GCC."},
	"mcpp":  {Debian: "apt install mcpp", Brew: "brew install mcpp"},
	"clang": {Debian: "apt install clang", Note: "Set command to clang and pass -E via a wrapper script."},
}

// ErrToolUnavailable is returned when the preprocessor is not installed.
// It includes install instructions when the tool is known.
type ErrToolUnavailable struct {
	Name string
	Info *toolInfo
}

func NewErrToolUnavailable(name string) ErrToolUnavailable {
	e := ErrToolUnavailable{Name: name}
	if info, ok := knownTools[name]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrToolUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed.", e.Name)
	if e.Info == nil {
		return b.String()
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "\nInstall:")
	if e.Info.Debian != "" {
		fmt.Fprintf(&b, "\n  %s   # Debian/Ubuntu", e.Info.Debian)
	}
	if e.Info.Brew != "" {
		fmt.Fprintf(&b, "\n  %s   # macOS", e.Info.Brew)
	}
	if e.Info.Note != "" {
		fmt.Fprintf(&b, "\nNote: %s", e.Info.Note)
	}
	return b.String()
}
