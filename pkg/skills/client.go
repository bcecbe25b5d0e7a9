// SPDX-License-Identifier: Apache-2.0
package skills

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/bastion/pkg/errors"
	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/resilience"
	"github.com/jllopis/bastion/pkg/timeout"
)

const defaultToolCacheTTL = 30 * time.Second

// CallRequest is the message accepted by a skill handle.
type CallRequest struct {
	Tool string
	Args map[string]any
}

// ClientOption customizes a skill client.
type ClientOption func(*Client)

// WithRetry overrides the transient-fault retry policy.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = rc }
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client is a live stdio connection to one external skill process. It tracks
// its own readiness so the registry's routing channel stays a weak reference:
// once the process dies, lookups answer NotAlive instead of stale success.
type Client struct {
	skill     string
	mcpClient mcpclient.MCPClient
	retry     resilience.RetryConfig
	cacheTTL  time.Duration

	mu          sync.Mutex
	state       locator.Readiness
	exitReason  string
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewStdioClient spawns the skill process described by the manifest and
// initializes the MCP connection. The returned client is Ready on success.
func NewStdioClient(ctx context.Context, m Manifest, opts ...ClientOption) (*Client, error) {
	c := &Client{
		skill:    m.Name,
		retry:    resilience.DefaultRetryConfig(),
		cacheTTL: defaultToolCacheTTL,
		state:    locator.Initializing,
	}
	for _, opt := range opts {
		opt(c)
	}

	stdio, err := mcpclient.NewStdioMCPClient(m.Command, envSlice(m.Env), m.Args...)
	if err != nil {
		return nil, errors.New(errors.CodeToolFailure,
			fmt.Sprintf("spawn skill %q", m.Name), err)
	}
	c.mcpClient = stdio

	cctx, cancel := context.WithTimeout(ctx, timeout.Lookup(timeout.ClassConnect))
	defer cancel()

	if err := stdio.Start(cctx); err != nil {
		stdio.Close()
		return nil, errors.New(errors.CodeToolFailure,
			fmt.Sprintf("start skill %q", m.Name), err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "bastion",
		Version: "0.1.0",
	}
	if _, err := stdio.Initialize(cctx, initReq); err != nil {
		stdio.Close()
		return nil, errors.New(errors.CodeToolFailure,
			fmt.Sprintf("initialize skill %q", m.Name), err)
	}

	c.setState(locator.Ready, "")
	return c, nil
}

// Skill returns the owning skill's name.
func (c *Client) Skill() string { return c.skill }

// Readiness reports the connection's lifecycle state.
func (c *Client) Readiness() locator.Readiness {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alive reports whether the connection is usable.
func (c *Client) Alive() bool {
	return c.Readiness() == locator.Ready
}

// CallTool executes a tool on the skill, retrying transient faults.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := c.retry.DoWithResult(ctx, func() (any, error) {
		res, err := c.mcpClient.CallTool(ctx, req)
		if err != nil {
			return nil, c.classifyTransportError(err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return toolResultToOutput(c.skill, tool, result.(*mcp.CallToolResult))
}

// ListTools retrieves the skill's advertised tools, with a short-lived cache.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	result, err := c.retry.DoWithResult(ctx, func() (any, error) {
		res, err := c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, c.classifyTransportError(err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	tools := result.(*mcp.ListToolsResult).Tools
	c.storeTools(tools)
	return tools, nil
}

// Close terminates the connection; the client reports Crashed afterwards so
// routed calls classify as NotAlive rather than hanging.
func (c *Client) Close() error {
	c.setState(locator.Crashed, "connection closed")
	return c.mcpClient.Close()
}

func (c *Client) setState(state locator.Readiness, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.exitReason = reason
}

// classifyTransportError marks the connection dead on faults that mean the
// process is gone, so later resolutions return NotAlive.
func (c *Client) classifyTransportError(err error) error {
	if isConnectionDead(err) {
		c.setState(locator.Crashed, err.Error())
		return &locator.ExitError{Reason: err.Error()}
	}
	return err
}

func isConnectionDead(err error) bool {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "file already closed") ||
		strings.Contains(msg, "process already finished")
}

func toolResultToOutput(skill, tool string, result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New(errors.CodeToolFailure,
			fmt.Sprintf("skill %q returned no result for %q", skill, tool), nil)
	}
	if result.IsError {
		return nil, errors.New(errors.CodeToolFailure,
			fmt.Sprintf("skill %q tool %q failed: %s", skill, tool, extractTextContent(result.Content)), nil)
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	return result, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

// toolSpecs converts discovered MCP tools to manifest tool specs.
func toolSpecs(tools []mcp.Tool) []ToolSpec {
	out := make([]ToolSpec, 0, len(tools))
	for _, tool := range tools {
		out = append(out, ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return out
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
