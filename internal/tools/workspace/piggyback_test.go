package workspace

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/domain"
)

func TestBuildBanner_NoAgent(t *testing.T) {
	env := newTestEnv(t)
	if banner := buildBanner(env.svc, ""); banner != "" {
		t.Errorf("expected empty banner, got %q", banner)
	}
	if banner := buildBanner(env.svc, "ghost"); banner != "" {
		t.Errorf("expected empty banner for unknown agent, got %q", banner)
	}
}

func TestBuildBanner_PendingWork(t *testing.T) {
	env := newTestEnv(t)
	a := join(t, env, "Alice", "backend")
	if banner := buildBanner(env.svc, a); banner != "" {
		t.Errorf("expected empty banner with nothing pending, got %q", banner)
	}

	if _, err := env.svc.CreateWork("schema", domain.RoleBackend, nil, nil); err != nil {
		t.Fatal(err)
	}
	banner := buildBanner(env.svc, a)
	if !strings.Contains(banner, "1 pending work item(s) for backend") {
		t.Errorf("expected pending work in banner, got %q", banner)
	}
}

func TestBuildBanner_ExpiringLock(t *testing.T) {
	env := newTestEnv(t)
	a := join(t, env, "Alice", "backend")
	if _, err := env.svc.AcquireLock(a, "a.go", 5*time.Minute, ""); err != nil {
		t.Fatal(err)
	}
	if banner := buildBanner(env.svc, a); banner != "" {
		t.Errorf("expected no banner for a fresh lock, got %q", banner)
	}
	env.clock.Advance(4*time.Minute + 30*time.Second)
	if banner := buildBanner(env.svc, a); !strings.Contains(banner, "renew_lock") {
		t.Errorf("expected renew hint, got %q", banner)
	}
}

func TestAppendBannerToResult(t *testing.T) {
	result := mcp.NewToolResultText("body")
	appendBannerToResult(result, "\n\nbanner")
	if got := result.Content[0].(mcp.TextContent).Text; got != "body\n\nbanner" {
		t.Errorf("unexpected text %q", got)
	}

	empty := &mcp.CallToolResult{}
	appendBannerToResult(empty, "banner")
	if len(empty.Content) != 1 {
		t.Errorf("expected a new text block, got %d", len(empty.Content))
	}
}

func TestPiggybackMiddleware(t *testing.T) {
	env := newTestEnv(t)
	s := server.NewMCPServer("test", "1.0.0",
		server.WithToolHandlerMiddleware(PiggybackMiddleware(env.svc, env.registry)),
	)
	Register(s, env.svc, env.registry, testLogger(), WithDocs(env.docs))

	a := join(t, env, "Alice", "backend")
	if _, err := env.svc.CreateWork("schema", domain.RoleBackend, nil, nil); err != nil {
		t.Fatal(err)
	}

	result, err := callTool(t, s, "list_agents", map[string]any{"agent_id": a})
	if err != nil {
		t.Fatal(err)
	}
	if text := resultText(t, result); !strings.Contains(text, "pending work item(s)") {
		t.Errorf("expected banner appended, got %q", text)
	}

	// poll_work already shows pending work.
	result, err = callTool(t, s, "poll_work", map[string]any{"agent_id": a})
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Errorf("expected plain JSON for a suppressed tool: %v", err)
	}
}
