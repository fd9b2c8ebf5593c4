// Package mcp provides the cpptext MCP server, exposing the preprocessor
// and stored run records as tools.
package mcp

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/cpptext"
	"github.com/deixis/cpptext/internal/config"
	"github.com/deixis/cpptext/internal/report"
	"github.com/deixis/cpptext/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Instructions is published to clients as the server's model instructions.
const Instructions = `cpptext runs the C preprocessor (cpp -P) on a file and returns the processed text.

Use cpp_preprocess with an absolute file path. Each call runs independently and
returns a run ID; use cpp_inspect with that ID to fetch the stored record again,
and cpp_runs to list recent runs. A non-zero preprocessor exit status is reported
but does not make the call fail; only a missing or unstartable preprocessor, or a
broken output stream, does.`

// recentLister is implemented by stores that can list recent records.
type recentLister interface {
	Recent() []*report.Record
}

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.RWMutex
	engine *workflow.Engine
	store  report.Store
}

// current returns the engine serving tool calls.
func (h *handler) current() *workflow.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// NewServer creates an MCP server with all cpptext tools registered.
func NewServer(engine *workflow.Engine, store report.Store) *mcp.Server {
	h := &handler{engine: engine, store: store}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "cpptext", Version: cpptext.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "cpp_preprocess",
		Description: `Run the C preprocessor (cpp -P) on a file and return the processed text.

Directives are expanded and line markers are suppressed. The run is stored for
later retrieval via cpp_inspect.`,
	}, h.preprocessHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cpp_inspect",
		Description: "Show a stored cpp_preprocess run by its run ID, including the full text.",
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cpp_runs",
		Description: "List recent cpp_preprocess runs, most recent first.",
	}, h.runsHandler)

	return s
}

// updateFromRoots queries the client for MCP roots and, if the first
// root is a local directory, reloads configuration from it and runs the
// preprocessor from there.
func (h *handler) updateFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}
	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil {
		return
	}
	if log := h.current().Log; log != nil {
		for _, w := range loaded.Warnings {
			log.Warn("%s", w)
		}
	}

	h.mu.Lock()
	h.engine = workflow.New(loaded.Config, u.Path, h.store, h.engine.Log)
	h.mu.Unlock()
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
