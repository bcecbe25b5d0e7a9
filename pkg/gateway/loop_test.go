// SPDX-License-Identifier: Apache-2.0
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jllopis/bastion/pkg/llm"
	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/memory"
	"github.com/jllopis/bastion/pkg/registry"
	"github.com/jllopis/bastion/pkg/resilience"
)

type fixture struct {
	server *Server
	store  *memory.InMemoryStore
	table  *locator.Table
	pool   *resilience.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	table := locator.NewTable()
	store := memory.NewInMemory()
	pool := resilience.NewPool(1, 8)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	table.Register(memory.NewHandle(store, pool))
	table.Register(llm.NewHandle(&llm.MockConsultant{Response: "the answer"}))

	reg := registry.NewRegistry(nil)
	handlers := NewHandlers(table, reg)
	return &fixture{
		server: NewServer(handlers, ServerInfo{Name: "bastion", Version: "0.1.0"}),
		store:  store,
		table:  table,
		pool:   pool,
	}
}

// run feeds input through the loop and returns the emitted response lines.
func (f *fixture) run(t *testing.T, input string) []string {
	t.Helper()
	var out bytes.Buffer
	if err := f.server.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	raw := strings.TrimRight(out.String(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

// decode parses one response line.
func decode(t *testing.T, line string) *Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("bad response line %q: %v", line, err)
	}
	return &resp
}

func requireError(t *testing.T, resp *Response, code int) *ErrorObject {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error response, got result %v", resp.Result)
	}
	if resp.Error.Code != code {
		t.Fatalf("expected code %d, got %d (%s)", code, resp.Error.Code, resp.Error.Message)
	}
	return resp.Error
}

func TestMalformedJSONYieldsParseError(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, "{not json\n{\"jsonrpc\":\"2.0\",\"method\":\"initialize\",\"id\":1}\n")

	if len(lines) != 2 {
		t.Fatalf("expected 2 responses, got %d: %v", len(lines), lines)
	}

	resp := decode(t, lines[0])
	requireError(t, resp, CodeParseError)
	if string(resp.ID) != "null" {
		t.Errorf("expected null id, got %s", resp.ID)
	}

	// The loop kept going after the bad line.
	if decode(t, lines[1]).Error != nil {
		t.Errorf("expected initialize to still succeed after parse error")
	}
}

func TestMissingMethodYieldsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","id":7}`+"\n")

	if len(lines) != 1 {
		t.Fatalf("expected 1 response, got %v", lines)
	}
	resp := decode(t, lines[0])
	requireError(t, resp, CodeInvalidRequest)
	if string(resp.ID) != "null" {
		t.Errorf("expected null id, got %s", resp.ID)
	}
}

func TestWrongShapeJSONYieldsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	input := `{"jsonrpc":"2.0","method":5,"id":1}` + "\n" + `[1,2,3]` + "\n"
	lines := f.run(t, input)

	if len(lines) != 2 {
		t.Fatalf("expected 2 responses, got %v", lines)
	}
	for _, line := range lines {
		resp := decode(t, line)
		requireError(t, resp, CodeInvalidRequest)
		if string(resp.ID) != "null" {
			t.Errorf("expected null id, got %s", resp.ID)
		}
	}
}

func TestUnknownMethodEchoesID(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"resources/list","id":42}`+"\n")

	resp := decode(t, lines[0])
	requireError(t, resp, CodeMethodNotFound)
	if string(resp.ID) != "42" {
		t.Errorf("expected id 42, got %s", resp.ID)
	}
}

func TestNotificationsProduceNoOutput(t *testing.T) {
	f := newFixture(t)
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ask","arguments":{"query":"q"}}}`,
		`{"jsonrpc":"2.0","method":"whatever","id":null}`,
	}, "\n") + "\n"

	if lines := f.run(t, input); lines != nil {
		t.Errorf("expected no output for notifications, got %v", lines)
	}
}

func TestInitializeHandshake(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"initialize","id":1}`+"\n")

	resp := decode(t, lines[0])
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != "1" {
		t.Errorf("expected id 1, got %s", resp.ID)
	}

	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("missing protocol version in %v", result)
	}
	if _, ok := result["capabilities"]; !ok {
		t.Errorf("missing capabilities in %v", result)
	}
	info, _ := result["serverInfo"].(map[string]any)
	if info["name"] != "bastion" {
		t.Errorf("unexpected server info %v", info)
	}
}

func TestToolsListReturnsCatalog(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/list","id":3}`+"\n")

	resp := decode(t, lines[0])
	result, _ := resp.Result.(map[string]any)
	tools, _ := result["tools"].([]any)
	if len(tools) != 3 {
		t.Fatalf("expected 3 built-in tools, got %v", result)
	}

	names := make(map[string]bool)
	for _, tool := range tools {
		entry, _ := tool.(map[string]any)
		names[entry["name"].(string)] = true
		if entry["inputSchema"] == nil {
			t.Errorf("tool %v missing input schema", entry["name"])
		}
	}
	for _, want := range []string{"ask", "store_memory", "reload_skills"} {
		if !names[want] {
			t.Errorf("catalog missing %q: %v", want, names)
		}
	}
}

func TestUnknownToolEnumeratesCatalog(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"bogus","arguments":{}},"id":4}`+"\n")

	resp := decode(t, lines[0])
	errObj := requireError(t, resp, CodeToolError)
	for _, want := range []string{"bogus", "ask", "store_memory", "reload_skills"} {
		if !strings.Contains(errObj.Message, want) {
			t.Errorf("expected message to mention %q: %s", want, errObj.Message)
		}
	}
}

func TestStoreMemoryMissingParams(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"store_memory","arguments":{}},"id":2}`+"\n")

	resp := decode(t, lines[0])
	errObj := requireError(t, resp, CodeToolError)
	if string(resp.ID) != "2" {
		t.Errorf("expected id 2, got %s", resp.ID)
	}
	if !strings.Contains(errObj.Message, "content") || !strings.Contains(errObj.Message, "category") {
		t.Errorf("expected message to name content and category: %s", errObj.Message)
	}
}

func TestStoreMemoryRoundTrip(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"store_memory","arguments":{"content":"gophers burrow","category":"facts"}},"id":5}`+"\n")

	resp := decode(t, lines[0])
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected 1 stored memory, got %d", f.store.Len())
	}
	stored := f.store.All()[0]
	if stored.Category != "facts" || stored.Importance != 0.5 {
		t.Errorf("unexpected stored memory %+v", stored)
	}

	text := resultText(t, resp)
	if !strings.Contains(text, stored.ID) {
		t.Errorf("expected result to carry the created id %q: %s", stored.ID, text)
	}
}

func TestAskMissingQuery(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ask","arguments":{}},"id":6}`+"\n")

	errObj := requireError(t, decode(t, lines[0]), CodeToolError)
	if !strings.Contains(errObj.Message, "query") {
		t.Errorf("expected message to name query: %s", errObj.Message)
	}
}

func TestAskReturnsAnswer(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ask","arguments":{"query":"why"}},"id":8}`+"\n")

	resp := decode(t, lines[0])
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if text := resultText(t, resp); text != "the answer" {
		t.Errorf("expected verbatim answer, got %q", text)
	}
}

func TestAskDegradesWhenMemoryUnavailable(t *testing.T) {
	f := newFixture(t)
	f.table.Deregister(memory.HandleName)

	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ask","arguments":{"query":"why"}},"id":9}`+"\n")
	resp := decode(t, lines[0])
	if resp.Error != nil {
		t.Fatalf("expected degraded success, got %v", resp.Error)
	}
}

func TestAskSurfacesConsultationFailure(t *testing.T) {
	f := newFixture(t)
	f.table.Deregister(llm.HandleName)
	f.table.Register(llm.NewHandle(&llm.FailingMockConsultant{}))

	lines := f.run(t, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ask","arguments":{"query":"why"}},"id":10}`+"\n")
	errObj := requireError(t, decode(t, lines[0]), CodeToolError)
	if !strings.Contains(errObj.Message, "consultation failed") {
		t.Errorf("unexpected message: %s", errObj.Message)
	}
}

func TestEndOfStreamTerminatesQuietly(t *testing.T) {
	f := newFixture(t)
	if lines := f.run(t, ""); lines != nil {
		t.Errorf("expected no output at end-of-stream, got %v", lines)
	}
}

func TestEmptyLinesSkipped(t *testing.T) {
	f := newFixture(t)
	lines := f.run(t, "\n\n  \n"+`{"jsonrpc":"2.0","method":"initialize","id":1}`+"\n\n")
	if len(lines) != 1 {
		t.Errorf("expected exactly 1 response, got %v", lines)
	}
}

func TestResponsesPreserveRequestOrder(t *testing.T) {
	f := newFixture(t)
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","method":"initialize","id":1}`,
		`{"jsonrpc":"2.0","method":"tools/list","id":2}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"ask","arguments":{"query":"q"}},"id":3}`,
	}, "\n") + "\n"

	lines := f.run(t, input)
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(lines))
	}
	for i, want := range []string{"1", "2", "3"} {
		if got := string(decode(t, lines[i]).ID); got != want {
			t.Errorf("response %d has id %s, want %s", i, got, want)
		}
	}
}

func resultText(t *testing.T, resp *Response) string {
	t.Helper()
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("expected single content block, got %v", result)
	}
	block, _ := content[0].(map[string]any)
	if block["type"] != "text" {
		t.Fatalf("expected text block, got %v", block)
	}
	text, _ := block["text"].(string)
	return text
}
