package workspace

import (
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/cowork/internal/app"
)

func TestRegister_ToolFilter(t *testing.T) {
	env := newTestEnv(t)
	s := server.NewMCPServer("test", "1.0.0")
	Register(s, env.svc, app.NewSessionRegistry(), testLogger(), WithDocs(env.docs),
		WithToolFilter(func(name string) bool { return name != "set_target" }))

	if _, err := callTool(t, s, "set_target", map[string]any{"target": "x"}); err == nil {
		t.Error("expected disabled tool to be unavailable")
	}
	body := mustCall(t, s, "list_agents", nil)
	if body["ok"] != true {
		t.Errorf("expected enabled tool to work, got %v", body)
	}
}

func TestRegister_DocsOptional(t *testing.T) {
	env := newTestEnv(t)
	s := server.NewMCPServer("test", "1.0.0")
	Register(s, env.svc, app.NewSessionRegistry(), testLogger())

	if _, err := callTool(t, s, "create_doc", map[string]any{"path": "a.ts"}); err == nil {
		t.Error("expected create_doc to be absent without a doc manager")
	}
}

func TestInstructionsText(t *testing.T) {
	text := InstructionsText()
	for _, name := range []string{"join_workspace", "lock_file", "poll_work", "create_doc", "subscribe_changes"} {
		if !strings.Contains(text, name) {
			t.Errorf("instructions should mention %s", name)
		}
	}
}
