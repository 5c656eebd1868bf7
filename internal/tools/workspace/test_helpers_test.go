package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/docsession"
	"github.com/jaakkos/cowork/internal/policy"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc      *app.WorkspaceService
	docs     *docsession.Manager
	registry *app.SessionRegistry
	clock    *fakeClock
	srv      *server.MCPServer
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// newTestEnv builds a service on a fake clock with every tool registered.
func newTestEnv(t *testing.T, opts ...RegisterOption) *testEnv {
	t.Helper()
	logger := testLogger()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	pol := policy.New(&policy.Config{WorkspaceRoot: "/ws"})
	svc := app.NewWorkspaceService(pol, logger, app.WithNow(clock.Now))
	docs := docsession.NewManager(logger, docsession.WithNow(clock.Now), docsession.WithPathNormalizer(pol.NormalizeResourcePath))
	registry := app.NewSessionRegistry()
	s := server.NewMCPServer("test", "1.0.0")
	Register(s, svc, registry, logger, append([]RegisterOption{WithDocs(docs)}, opts...)...)
	return &testEnv{svc: svc, docs: docs, registry: registry, clock: clock, srv: s}
}

// callTool calls a registered tool via the MCPServer's HandleMessage.
// Returns the parsed CallToolResult or an error.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(context.Background(), reqJSON)

	respBytes, marshalErr := json.Marshal(respJSON)
	if marshalErr != nil {
		t.Fatalf("marshal response: %v", marshalErr)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	return &result, nil
}

// resultText extracts the first text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

// mustCall calls a tool, fails on RPC errors and decodes the JSON body.
func mustCall(t *testing.T, s *server.MCPServer, name string, args map[string]any) map[string]any {
	t.Helper()
	result, err := callTool(t, s, name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("%s: decode body: %v\n%s", name, err, resultText(t, result))
	}
	return body
}

// join registers an agent through the tool and returns its id.
func join(t *testing.T, env *testEnv, name, role string) string {
	t.Helper()
	body := mustCall(t, env.srv, "join_workspace", map[string]any{"name": name, "role": role, "client": "test"})
	agent, _ := body["agent"].(map[string]any)
	id, _ := agent["id"].(string)
	if id == "" {
		t.Fatalf("join_workspace returned no agent id: %v", body)
	}
	return id
}
