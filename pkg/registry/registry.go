// SPDX-License-Identifier: Apache-2.0

// Package registry owns the tool catalog and the routing table that maps a
// tool name to its execution target. The catalog is replaced wholesale on
// reload; readers always see a complete snapshot, never a half-built one.
package registry

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/jllopis/bastion/pkg/skills"
)

// InternalTag identifies one of the built-in handlers.
type InternalTag string

const (
	TagAsk    InternalTag = "ask"
	TagStore  InternalTag = "store"
	TagReload InternalTag = "reload"
)

// Built-in tool names.
const (
	ToolAsk    = "ask"
	ToolStore  = "store_memory"
	ToolReload = "reload_skills"
)

// ToolDescriptor is an immutable catalog entry.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// RouteKind discriminates a RouteTarget.
type RouteKind int

const (
	RouteNotFound RouteKind = iota
	RouteInternal
	RouteSkill
)

// RouteTarget is the routing decision for one tool name. Internal targets
// carry a handler tag; skill targets carry the owning skill's name and its
// locator channel. The channel is a name, not a connection: if the skill
// process has died, calls through it classify as NotAlive rather than
// reaching a stale pipe.
type RouteTarget struct {
	Kind    RouteKind
	Handler InternalTag
	Skill   string
	Channel string
}

// SkillSource provides the external skill catalog. Loading it must also
// (re)establish the skills' routing channels.
type SkillSource interface {
	Load(ctx context.Context) ([]skills.Manifest, error)
}

// ToolDescriber is implemented by skill sources that can ask a live skill
// process which tools it advertises. Reload uses it to backfill input
// schemas a manifest leaves out.
type ToolDescriber interface {
	DescribeTools(ctx context.Context, skill string) ([]skills.ToolSpec, bool)
}

// catalog is one immutable registry snapshot.
type catalog struct {
	tools  []ToolDescriptor
	routes map[string]RouteTarget
	names  []string
}

// Registry maps tool names to route targets. Lookups run against an atomic
// snapshot, so a reload never mutates the catalog a request already resolved
// against.
type Registry struct {
	source   SkillSource
	snapshot atomic.Pointer[catalog]
}

// NewRegistry creates a Registry containing only the built-in tools. Call
// Reload to populate it with skills.
func NewRegistry(source SkillSource) *Registry {
	r := &Registry{source: source}
	r.snapshot.Store(buildCatalog(nil))
	return r
}

// Reload rebuilds the entire catalog from the built-in tools plus the skill
// source and swaps it in atomically. On error the previous snapshot stays in
// place.
func (r *Registry) Reload(ctx context.Context) error {
	var manifests []skills.Manifest
	if r.source != nil {
		var err error
		manifests, err = r.source.Load(ctx)
		if err != nil {
			return err
		}
	}
	if describer, ok := r.source.(ToolDescriber); ok {
		for i := range manifests {
			manifests[i].Tools = backfillSchemas(ctx, describer, manifests[i])
		}
	}
	r.snapshot.Store(buildCatalog(manifests))
	return nil
}

// backfillSchemas fills in missing input schemas from the skill's own tool
// advertisement. The manifest stays the contract: tools it does not list are
// not added, and schemas it does carry are not overwritten. A skill that is
// still connecting simply keeps its manifest as written until the next
// reload.
func backfillSchemas(ctx context.Context, d ToolDescriber, m skills.Manifest) []skills.ToolSpec {
	incomplete := false
	for _, tool := range m.Tools {
		if tool.InputSchema == nil {
			incomplete = true
			break
		}
	}
	if !incomplete {
		return m.Tools
	}

	advertised, ok := d.DescribeTools(ctx, m.Name)
	if !ok {
		return m.Tools
	}
	byName := make(map[string]skills.ToolSpec, len(advertised))
	for _, tool := range advertised {
		byName[tool.Name] = tool
	}

	out := make([]skills.ToolSpec, len(m.Tools))
	copy(out, m.Tools)
	for i, tool := range out {
		if tool.InputSchema != nil {
			continue
		}
		adv, found := byName[tool.Name]
		if !found {
			continue
		}
		out[i].InputSchema = adv.InputSchema
		if tool.Description == "" {
			out[i].Description = adv.Description
		}
	}
	return out
}

// Resolve maps a tool name to its route target. Unknown names resolve to a
// RouteNotFound target.
func (r *Registry) Resolve(name string) RouteTarget {
	c := r.snapshot.Load()
	if target, ok := c.routes[name]; ok {
		return target
	}
	return RouteTarget{Kind: RouteNotFound}
}

// ListAll returns the full tool catalog of the current snapshot.
func (r *Registry) ListAll() []ToolDescriptor {
	return r.snapshot.Load().tools
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	return r.snapshot.Load().names
}

func buildCatalog(manifests []skills.Manifest) *catalog {
	c := &catalog{routes: make(map[string]RouteTarget)}

	add := func(d ToolDescriptor, t RouteTarget) {
		if _, dup := c.routes[d.Name]; dup {
			// First registration wins; built-ins are added before skills,
			// so a skill cannot shadow them.
			return
		}
		c.tools = append(c.tools, d)
		c.routes[d.Name] = t
		c.names = append(c.names, d.Name)
	}

	for _, d := range builtinTools() {
		add(d, RouteTarget{Kind: RouteInternal, Handler: builtinTags[d.Name]})
	}

	for _, m := range manifests {
		for _, tool := range m.Tools {
			add(ToolDescriptor{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			}, RouteTarget{
				Kind:    RouteSkill,
				Skill:   m.Name,
				Channel: skills.HandleNameFor(m.Name),
			})
		}
	}

	sort.Strings(c.names)
	return c
}

var builtinTags = map[string]InternalTag{
	ToolAsk:    TagAsk,
	ToolStore:  TagStore,
	ToolReload: TagReload,
}

func builtinTools() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:        ToolAsk,
			Description: "Ask the assistant a question, grounded in stored memories.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The question to answer",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolStore,
			Description: "Store a memory for later retrieval.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The content to remember",
					},
					"category": map[string]any{
						"type":        "string",
						"description": "Category of the memory",
					},
					"importance": map[string]any{
						"type":        "number",
						"description": "Importance between 0 and 1",
					},
				},
				"required": []string{"content", "category"},
			},
		},
		{
			Name:        ToolReload,
			Description: "Reload the skill catalog from disk.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
