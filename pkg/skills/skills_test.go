// SPDX-License-Identifier: Apache-2.0
package skills

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/resilience"
)

func writeManifest(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

const validManifest = `name: files
description: Read and write files in the workspace.
command: bastion-skill-files
args: ["--root", "/tmp"]
tools:
  - name: read_file
    description: Read a file.
    input_schema:
      type: object
      properties:
        path: {type: string}
      required: [path]
  - name: write_file
    description: Write a file.
`

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "files", validManifest)

	// Directories without a manifest are skipped.
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	manifests, err := LoadDir(root)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(manifests))
	}

	m := manifests[0]
	if m.Name != "files" || m.Command != "bastion-skill-files" {
		t.Errorf("unexpected manifest %+v", m)
	}
	if len(m.Args) != 2 || m.Args[0] != "--root" {
		t.Errorf("unexpected args %v", m.Args)
	}
	if len(m.Tools) != 2 || m.Tools[0].Name != "read_file" {
		t.Errorf("unexpected tools %+v", m.Tools)
	}
	if m.Tools[0].InputSchema["type"] != "object" {
		t.Errorf("expected input schema preserved, got %v", m.Tools[0].InputSchema)
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"missing name", "description: d\ncommand: c\ntools: [{name: t, description: d}]\n"},
		{"missing description", "name: files\ncommand: c\ntools: [{name: t, description: d}]\n"},
		{"missing command", "name: files\ndescription: d\ntools: [{name: t, description: d}]\n"},
		{"no tools", "name: files\ndescription: d\ncommand: c\n"},
		{"bad name", "name: Files!\ndescription: d\ncommand: c\ntools: [{name: t, description: d}]\n"},
		{"duplicate tools", "name: files\ndescription: d\ncommand: c\ntools: [{name: t}, {name: t}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeManifest(t, root, "files", tt.manifest)
			if _, err := LoadFile(filepath.Join(root, "files", manifestFile)); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadFileNameMustMatchDirectory(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "browser", validManifest) // manifest says "files"

	if _, err := LoadFile(filepath.Join(root, "browser", manifestFile)); err == nil {
		t.Errorf("expected mismatch error")
	}
}

func TestSlotReadinessLifecycle(t *testing.T) {
	s := &slot{
		skill:   "files",
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "files"}),
	}

	if s.readiness() != locator.Initializing {
		t.Errorf("expected Initializing before connect, got %v", s.readiness())
	}
	if s.alive() {
		t.Errorf("expected not alive before connect")
	}

	s.mu.Lock()
	s.failed = true
	s.reason = "command not found"
	s.mu.Unlock()

	if s.readiness() != locator.Crashed {
		t.Errorf("expected Crashed after failed connect, got %v", s.readiness())
	}
}

func TestManagerLoadRegistersHandles(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "files", validManifest)

	table := locator.NewTable()
	mgr := NewManager(root, table)
	defer mgr.Close()

	manifests, err := mgr.Load(t.Context())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(manifests))
	}

	h, ok := table.Resolve(HandleNameFor("files"))
	if !ok {
		t.Fatalf("expected handle registered for skill")
	}
	// The fake command cannot connect; until that resolves the handle is
	// Initializing, afterwards Crashed. Never Ready.
	if state := h.Readiness(); state == locator.Ready {
		t.Errorf("expected non-ready handle for unconnectable skill, got %v", state)
	}
}

func TestManagerCloseDeregisters(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "files", validManifest)

	table := locator.NewTable()
	mgr := NewManager(root, table)
	if _, err := mgr.Load(t.Context()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	mgr.Close()

	if _, ok := table.Resolve(HandleNameFor("files")); ok {
		t.Errorf("expected handle deregistered after close")
	}
}

// fakeMCPClient stubs the MCP transport; only the methods the client under
// test reaches are implemented.
type fakeMCPClient struct {
	mcpclient.MCPClient

	mu        sync.Mutex
	tools     []mcp.Tool
	listCalls int
	callCalls int
	callErrs  []error
}

func (f *fakeMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeMCPClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCalls++
	if len(f.callErrs) > 0 {
		err := f.callErrs[0]
		f.callErrs = f.callErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "ok"}},
	}, nil
}

func (f *fakeMCPClient) Close() error { return nil }

func connectedClient(fake *fakeMCPClient, opts ...ClientOption) *Client {
	c := &Client{
		skill:     "files",
		mcpClient: fake,
		retry:     resilience.DefaultRetryConfig(),
		cacheTTL:  defaultToolCacheTTL,
		state:     locator.Ready,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func advertisedTools() []mcp.Tool {
	return []mcp.Tool{{
		Name:        "read_file",
		Description: "Read a file.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{"type": "string"},
			},
			Required: []string{"path"},
		},
	}}
}

func TestClientListToolsCaches(t *testing.T) {
	fake := &fakeMCPClient{tools: advertisedTools()}
	c := connectedClient(fake)

	for i := 0; i < 3; i++ {
		tools, err := c.ListTools(t.Context())
		if err != nil {
			t.Fatalf("list tools failed: %v", err)
		}
		if len(tools) != 1 || tools[0].Name != "read_file" {
			t.Fatalf("unexpected tools %v", tools)
		}
	}
	if fake.listCalls != 1 {
		t.Errorf("expected 1 transport call with cache, got %d", fake.listCalls)
	}
}

func TestClientListToolsCacheDisabled(t *testing.T) {
	fake := &fakeMCPClient{tools: advertisedTools()}
	c := connectedClient(fake, WithToolCacheTTL(0))

	for i := 0; i < 2; i++ {
		if _, err := c.ListTools(t.Context()); err != nil {
			t.Fatalf("list tools failed: %v", err)
		}
	}
	if fake.listCalls != 2 {
		t.Errorf("expected uncached calls, got %d", fake.listCalls)
	}
}

func TestClientCallToolRetriesTransientFaults(t *testing.T) {
	fake := &fakeMCPClient{callErrs: []error{errors.New("temporarily unavailable")}}
	c := connectedClient(fake, WithRetry(
		resilience.DefaultRetryConfig().
			WithMaxAttempts(3).
			WithInitialDelay(time.Millisecond)))

	out, err := c.CallTool(t.Context(), "read_file", map[string]any{"path": "/tmp/x"})
	if err != nil {
		t.Fatalf("call failed after retry: %v", err)
	}
	if out != "ok" {
		t.Errorf("unexpected output %v", out)
	}
	if fake.callCalls != 2 {
		t.Errorf("expected 2 attempts, got %d", fake.callCalls)
	}
}

func TestManagerDescribeTools(t *testing.T) {
	mgr := NewManager(t.TempDir(), locator.NewTable())
	fake := &fakeMCPClient{tools: advertisedTools()}
	mgr.slots["files"] = &slot{skill: "files", client: connectedClient(fake)}

	if _, ok := mgr.Client("files"); !ok {
		t.Fatalf("expected live client for connected skill")
	}

	specs, ok := mgr.DescribeTools(t.Context(), "files")
	if !ok {
		t.Fatalf("expected discovery to succeed")
	}
	if len(specs) != 1 || specs[0].Name != "read_file" {
		t.Fatalf("unexpected specs %v", specs)
	}
	schema := specs[0].InputSchema
	if schema["type"] != "object" {
		t.Errorf("schema not converted: %v", schema)
	}
	if _, ok := schema["properties"].(map[string]any)["path"]; !ok {
		t.Errorf("schema properties lost: %v", schema)
	}
}

func TestManagerDescribeToolsNotConnected(t *testing.T) {
	mgr := NewManager(t.TempDir(), locator.NewTable())
	mgr.slots["files"] = &slot{skill: "files"}

	if _, ok := mgr.DescribeTools(t.Context(), "files"); ok {
		t.Errorf("expected discovery to report unavailable while connecting")
	}
	if _, ok := mgr.DescribeTools(t.Context(), "missing"); ok {
		t.Errorf("expected discovery to report unavailable for unknown skill")
	}
}

func TestEnvSlice(t *testing.T) {
	if envSlice(nil) != nil {
		t.Errorf("expected nil for empty env")
	}
	out := envSlice(map[string]string{"A": "1"})
	if len(out) != 1 || out[0] != "A=1" {
		t.Errorf("unexpected env slice %v", out)
	}
}
