// SPDX-License-Identifier: Apache-2.0
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/bastion/pkg/errors"
	"github.com/jllopis/bastion/pkg/llm"
	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/memory"
	"github.com/jllopis/bastion/pkg/registry"
	"github.com/jllopis/bastion/pkg/resilience"
	"github.com/jllopis/bastion/pkg/skills"
	"github.com/jllopis/bastion/pkg/timeout"
)

const (
	memorySearchLimit = 5
	summaryMaxChars   = 200
	summaryCategory   = "conversation"
)

// Handlers executes routed tool calls. Every collaborator is reached through
// the locator and the defensive layer, so a collaborator that has not
// started, has crashed, or hangs can never hang a request past its budget.
type Handlers struct {
	locator  locator.Locator
	registry *registry.Registry
}

// NewHandlers wires the tool executor over a locator and registry.
func NewHandlers(loc locator.Locator, reg *registry.Registry) *Handlers {
	return &Handlers{locator: loc, registry: reg}
}

// CallTool resolves a tool name and executes it. A returned error is a
// tool-level failure to be encoded as a -32000 response; it never represents
// a protocol fault.
func (h *Handlers) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	target := h.registry.Resolve(name)
	switch target.Kind {
	case registry.RouteInternal:
		return h.callInternal(ctx, target.Handler, args)
	case registry.RouteSkill:
		return h.callSkill(ctx, target, name, args)
	default:
		return nil, errors.New(errors.CodeNotFound,
			fmt.Sprintf("unknown tool %q (available tools: %s)",
				name, strings.Join(h.registry.Names(), ", ")), nil)
	}
}

func (h *Handlers) callInternal(ctx context.Context, tag registry.InternalTag, args map[string]any) (any, error) {
	switch tag {
	case registry.TagAsk:
		return h.ask(ctx, args)
	case registry.TagStore:
		return h.store(ctx, args)
	case registry.TagReload:
		return h.reload(ctx)
	default:
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("unmapped internal handler %q", tag), nil)
	}
}

func (h *Handlers) callSkill(ctx context.Context, target registry.RouteTarget, tool string, args map[string]any) (any, error) {
	out := resilience.SafeCall(ctx, h.locator, target.Channel,
		skills.CallRequest{Tool: tool, Args: args},
		timeout.Lookup(timeout.ClassMCPTool))
	if !out.OK() {
		return nil, errors.New(errors.CodeToolFailure,
			fmt.Sprintf("skill %q call failed", target.Skill), out.Err()).
			WithAttribute("skill", target.Skill)
	}
	return out.Value, nil
}

// ask answers a query, grounded in whatever memories can be retrieved.
// Memory retrieval degrades to an empty set on any failure; only the
// consultation itself can fail the call.
func (h *Handlers) ask(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, errors.New(errors.CodeInvalidInput, "missing required parameter: query", nil)
	}

	memories := h.relatedMemories(ctx, query)

	out := resilience.SafeCall(ctx, h.locator, llm.HandleName,
		llm.ConsultRequest{Query: query, Memories: memories},
		timeout.Lookup(timeout.ClassQuery))
	if !out.OK() {
		return nil, errors.New(errors.CodeLLMError, "consultation failed", out.Err())
	}

	answer, ok := out.Value.(string)
	if !ok {
		return nil, errors.New(errors.CodeLLMError,
			fmt.Sprintf("consultation returned unexpected %T", out.Value), nil)
	}

	// Best effort. The outcome is deliberately ignored: a persistence
	// failure here must never surface to the caller or touch the
	// response stream.
	resilience.SafeCast(h.locator, memory.HandleName, memory.StoreRequest{
		Content:    truncate(answer, summaryMaxChars),
		Category:   summaryCategory,
		Importance: 0.5,
	})

	return answer, nil
}

// relatedMemories searches the store for context, falling back to an empty
// set when the store is unavailable, slow, or failing.
func (h *Handlers) relatedMemories(ctx context.Context, query string) []string {
	out := resilience.WithFallback(ctx,
		func(ctx context.Context) (any, error) {
			res := resilience.SafeCall(ctx, h.locator, memory.HandleName,
				memory.SearchRequest{Query: query, Limit: memorySearchLimit},
				timeout.Lookup(timeout.ClassDatabase))
			return res.Value, res.Err()
		},
		func(ctx context.Context) (any, error) {
			return []memory.Memory(nil), nil
		},
		resilience.FallbackOpts{Budget: timeout.Lookup(timeout.ClassDatabase)})
	if !out.OK() {
		return nil
	}

	found, _ := out.Value.([]memory.Memory)
	contents := make([]string, 0, len(found))
	for _, m := range found {
		contents = append(contents, m.Content)
	}
	return contents
}

func (h *Handlers) store(ctx context.Context, args map[string]any) (any, error) {
	content, _ := args["content"].(string)
	category, _ := args["category"].(string)

	var missing []string
	if content == "" {
		missing = append(missing, "content")
	}
	if category == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return nil, errors.New(errors.CodeInvalidInput,
			"missing required parameters: "+strings.Join(missing, ", "), nil)
	}

	importance := 0.5
	if v, ok := args["importance"].(float64); ok {
		importance = v
	}

	out := resilience.SafeCall(ctx, h.locator, memory.HandleName,
		memory.StoreRequest{Content: content, Category: category, Importance: importance},
		timeout.Lookup(timeout.ClassDatabase))
	if !out.OK() {
		return nil, errors.New(errors.CodeMemoryError, "memory store failed", out.Err())
	}

	id, _ := out.Value.(string)
	return map[string]any{"id": id, "category": category}, nil
}

func (h *Handlers) reload(ctx context.Context) (any, error) {
	if err := h.registry.Reload(ctx); err != nil {
		return nil, errors.New(errors.CodeToolFailure, "skill reload failed", err)
	}
	return map[string]any{"tools": len(h.registry.Names())}, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
