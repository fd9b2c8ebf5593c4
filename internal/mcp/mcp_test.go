package mcp

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deixis/cpptext/internal/config"
	"github.com/deixis/cpptext/internal/report"
	"github.com/deixis/cpptext/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setup creates a cpptext MCP server + client over in-memory transports,
// running command as the preprocessor from dir.
func setup(t *testing.T, dir, command string) *mcp.ClientSession {
	t.Helper()
	return setupWithRoots(t, dir, command)
}

// setupWithRoots is setup with a client that advertises roots.
func setupWithRoots(t *testing.T, dir, command string, roots ...*mcp.Root) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	engine := workflow.New(&config.Config{Command: command}, dir, store, nil)
	server := NewServer(engine, store)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	client.AddRoots(roots...)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

// fakeTool writes an executable shell script standing in for cpp.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "fakecpp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// runID extracts the run ID from a "Run: <id>" header line.
func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if id, ok := strings.CutPrefix(line, "Run: "); ok {
			return id
		}
	}
	t.Fatalf("no run ID in:\n%s", text)
	return ""
}

func TestListTools(t *testing.T) {
	cs := setup(t, t.TempDir(), "cpp")
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"cpp_preprocess", "cpp_inspect", "cpp_runs"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

// --- cpp_preprocess ---

func TestCppPreprocess(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.h"), []byte("int x;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cs := setup(t, dir, fakeTool(t, `cat "$2"`))

	res := callTool(t, cs, "cpp_preprocess", map[string]any{"path": "a.h"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.HasSuffix(text, "\nint x;\n") {
		t.Errorf("expected preprocessed text at the end, got:\n%s", text)
	}
	if !strings.Contains(text, "-P a.h") {
		t.Errorf("expected command line in header, got:\n%s", text)
	}
}

func TestCppPreprocess_MissingPath(t *testing.T) {
	cs := setup(t, t.TempDir(), "cpp")
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "cpp_preprocess",
		Arguments: map[string]any{},
	})
	if err == nil {
		t.Error("expected error for missing path")
	}
}

func TestCppPreprocess_MissingPreprocessor(t *testing.T) {
	cs := setup(t, t.TempDir(), "cpptext-no-such-preprocessor")
	res := callTool(t, cs, "cpp_preprocess", map[string]any{"path": "a.c"})
	if !res.IsError {
		t.Fatal("expected IsError when the preprocessor is missing")
	}
	text := resultText(res)
	if !strings.Contains(text, "startup failure") {
		t.Errorf("expected startup failure, got:\n%s", text)
	}
	if !strings.Contains(text, "is required but not installed") {
		t.Errorf("expected install hint, got:\n%s", text)
	}
}

func TestCppPreprocess_NonZeroExit(t *testing.T) {
	cs := setup(t, t.TempDir(), fakeTool(t, "echo partial\nexit 1"))
	res := callTool(t, cs, "cpp_preprocess", map[string]any{"path": "a.c"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("non-zero exit should not be a tool error: %s", text)
	}
	if !strings.Contains(text, "Exit: 1") || !strings.Contains(text, "partial") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

// --- cpp_inspect ---

func TestCppInspect_AfterPreprocess(t *testing.T) {
	cs := setup(t, t.TempDir(), fakeTool(t, "echo hello"))
	first := resultText(callTool(t, cs, "cpp_preprocess", map[string]any{"path": "a.c"}))
	id := runID(t, first)

	res := callTool(t, cs, "cpp_inspect", map[string]any{"run_id": id})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if text != first {
		t.Errorf("inspect = %q, want %q", text, first)
	}
}

func TestCppInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, t.TempDir(), "cpp")
	res := callTool(t, cs, "cpp_inspect", map[string]any{"run_id": "nonexistent-id"})
	if !res.IsError {
		t.Error("expected IsError for invalid run_id")
	}
}

// --- cpp_runs ---

func TestCppRuns(t *testing.T) {
	cs := setup(t, t.TempDir(), fakeTool(t, "echo hello"))
	if text := resultText(callTool(t, cs, "cpp_runs", nil)); text != "No runs yet." {
		t.Errorf("empty runs = %q", text)
	}

	id := runID(t, resultText(callTool(t, cs, "cpp_preprocess", map[string]any{"path": "a.c"})))
	text := resultText(callTool(t, cs, "cpp_runs", nil))
	if !strings.Contains(text, id) {
		t.Errorf("expected run %s in list, got:\n%s", id, text)
	}
}

// --- roots ---

func TestRoots_ReloadConfig(t *testing.T) {
	t.Setenv("CPPTEXT_COMMAND", "")
	t.Setenv("CPPTEXT_TIMEOUT", "")
	t.Setenv("CPPTEXT_WORKERS", "")

	root := t.TempDir()
	tool := fakeTool(t, `echo "from root: $(pwd)"`)
	cfg := "version: 1\ncommand: " + tool + "\n"
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	// The initial engine points at a missing preprocessor; only the
	// client's root config makes cpp_preprocess succeed.
	cs := setupWithRoots(t, t.TempDir(), "cpptext-no-such-preprocessor", &mcp.Root{URI: "file://" + root})

	deadline := time.Now().Add(10 * time.Second)
	for {
		res := callTool(t, cs, "cpp_preprocess", map[string]any{"path": "a.c"})
		text := resultText(res)
		if !res.IsError {
			if !strings.Contains(text, "from root: ") {
				t.Errorf("unexpected output:\n%s", text)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("config from root never applied; last result:\n%s", text)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
