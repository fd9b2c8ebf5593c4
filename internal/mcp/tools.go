package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deixis/cpptext/internal/capture"
	"github.com/deixis/cpptext/internal/report"
	"github.com/deixis/cpptext/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type preprocessParams struct {
	Path string `json:"path" jsonschema:"path of the file to preprocess; relative paths resolve against the workspace root"`
}

func (h *handler) preprocessHandler(ctx context.Context, req *mcp.CallToolRequest, params preprocessParams) (*mcp.CallToolResult, any, error) {
	if params.Path == "" {
		return errorResult("path is required")
	}

	engine := h.current()
	res := engine.PreprocessFile(ctx, params.Path)
	if res.Record.Failed() {
		msg := fmt.Sprintf("Run: %s\n%s", res.Record.ID, res.Record.Error)
		var se *capture.StartupError
		if errors.As(res.Outcome.Err, &se) && se.NotFound() {
			msg += "\n\n" + workflow.NewErrToolUnavailable(engine.Config.PreprocessorCommand()).Error()
		}
		return errorResult(msg)
	}
	return textResult(formatRecord(res.Record))
}

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from a cpp_preprocess result"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if h.store == nil {
		return errorResult("no run store configured")
	}

	rec, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	return textResult(formatRecord(rec))
}

type runsParams struct{}

func (h *handler) runsHandler(ctx context.Context, req *mcp.CallToolRequest, params runsParams) (*mcp.CallToolResult, any, error) {
	lister, ok := h.store.(recentLister)
	if !ok {
		return errorResult("the run store cannot list recent runs")
	}
	recent := lister.Recent()
	if len(recent) == 0 {
		return textResult("No runs yet.")
	}

	var b strings.Builder
	for _, r := range recent {
		fmt.Fprintln(&b, r.Summary())
	}
	return textResult(b.String())
}

// formatRecord renders a header followed by the preprocessed text.
func formatRecord(r *report.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", r.ID)
	fmt.Fprintf(&b, "File: %s\n", r.Path)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(r.Argv, " "))
	if r.Failed() {
		fmt.Fprintf(&b, "Status: %s (%s)\n", r.Status, r.Error)
		return b.String()
	}
	fmt.Fprintf(&b, "Exit: %d\n", r.ExitCode)
	fmt.Fprintln(&b)
	b.WriteString(r.Text)
	return b.String()
}
