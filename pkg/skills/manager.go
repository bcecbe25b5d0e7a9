// SPDX-License-Identifier: Apache-2.0
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/resilience"
)

// HandleNameFor returns the locator name of a skill's routing channel.
func HandleNameFor(skill string) string {
	return "skill:" + skill
}

// Manager owns the lifecycle of every configured skill process. Each skill
// gets a locator handle immediately on load; the handle reports Initializing
// until the stdio connection is up, so calls routed to a skill that has not
// finished starting classify as NotReady instead of blocking.
type Manager struct {
	dir   string
	table *locator.Table

	mu    sync.RWMutex
	slots map[string]*slot
}

// slot tracks one skill's connection through its lifecycle.
type slot struct {
	skill   string
	breaker *resilience.CircuitBreaker

	mu     sync.Mutex
	client *Client
	failed bool
	reason string
}

// NewManager creates a Manager over the given skills directory.
func NewManager(dir string, table *locator.Table) *Manager {
	return &Manager{
		dir:   dir,
		table: table,
		slots: make(map[string]*slot),
	}
}

// Load reads every manifest under the skills directory, replaces the current
// skill set wholesale, and starts connecting to each skill in the background.
// The returned manifests describe the new catalog.
func (m *Manager) Load(ctx context.Context) ([]Manifest, error) {
	manifests, err := LoadDir(m.dir)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	old := m.slots
	m.slots = make(map[string]*slot, len(manifests))
	for _, manifest := range manifests {
		s := &slot{
			skill: manifest.Name,
			breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				Name: manifest.Name,
			}),
		}
		m.slots[manifest.Name] = s
		m.table.Register(m.handleFor(s))
	}
	m.mu.Unlock()

	for name, s := range old {
		if _, kept := m.slots[name]; !kept {
			m.table.Deregister(HandleNameFor(name))
		}
		s.close()
	}

	for _, manifest := range manifests {
		m.mu.RLock()
		s := m.slots[manifest.Name]
		m.mu.RUnlock()
		go m.connect(ctx, manifest, s)
	}

	return manifests, nil
}

func (m *Manager) connect(ctx context.Context, manifest Manifest, s *slot) {
	client, err := NewStdioClient(ctx, manifest)
	if err != nil {
		slog.Warn("skill connection failed", "skill", manifest.Name, "err", err)
		s.mu.Lock()
		s.failed = true
		s.reason = err.Error()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	stale := false
	m.mu.RLock()
	if m.slots[manifest.Name] != s {
		stale = true
	}
	m.mu.RUnlock()
	if stale {
		s.mu.Unlock()
		client.Close()
		return
	}
	s.client = client
	s.mu.Unlock()
	slog.Info("skill connected", "skill", manifest.Name)
}

// handleFor builds the skill's locator handle, routing calls through the
// slot's circuit breaker.
func (m *Manager) handleFor(s *slot) *locator.FuncHandle {
	return locator.NewHandle(HandleNameFor(s.skill),
		func(ctx context.Context, msg any) (any, error) {
			req, ok := msg.(CallRequest)
			if !ok {
				return nil, fmt.Errorf("skill handle: unsupported message %T", msg)
			}
			client := s.currentClient()
			if client == nil {
				return nil, fmt.Errorf("skill %q has no live connection", s.skill)
			}
			var result any
			err := s.breaker.Call(func() error {
				var callErr error
				result, callErr = client.CallTool(ctx, req.Tool, req.Args)
				return callErr
			})
			return result, err
		},
		locator.WithReadiness(s.readiness),
		locator.WithAlive(s.alive),
	)
}

// Client returns the live client for a skill, if connected.
func (m *Manager) Client(skill string) (*Client, bool) {
	m.mu.RLock()
	s, ok := m.slots[skill]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	client := s.currentClient()
	return client, client != nil
}

// DescribeTools queries a connected skill for the tools it advertises over
// MCP. It reports false when the skill has no live connection yet or the
// discovery call fails; callers fall back to the manifest in that case.
func (m *Manager) DescribeTools(ctx context.Context, skill string) ([]ToolSpec, bool) {
	client, ok := m.Client(skill)
	if !ok {
		return nil, false
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		slog.Debug("skill tool discovery failed", "skill", skill, "err", err)
		return nil, false
	}
	return toolSpecs(tools), true
}

// Close terminates every skill connection and deregisters their handles.
func (m *Manager) Close() {
	m.mu.Lock()
	slots := m.slots
	m.slots = make(map[string]*slot)
	m.mu.Unlock()

	for name, s := range slots {
		m.table.Deregister(HandleNameFor(name))
		s.close()
	}
}

func (s *slot) currentClient() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *slot) readiness() locator.Readiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client.Readiness()
	}
	if s.failed {
		return locator.Crashed
	}
	return locator.Initializing
}

func (s *slot) alive() bool {
	return s.readiness() == locator.Ready
}

func (s *slot) close() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		client.Close()
	}
}
