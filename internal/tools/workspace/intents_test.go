package workspace

import (
	"testing"

	"github.com/jaakkos/cowork/internal/domain"
)

func TestPostIntent_UpdatesAgentAndLog(t *testing.T) {
	env := newTestEnv(t)
	a := join(t, env, "Alice", "backend")

	body := mustCall(t, env.srv, "post_intent", map[string]any{
		"agent_id":    a,
		"action":      "working",
		"description": "refactoring auth",
		"target":      "src/auth.go",
	})
	in := body["intent"].(map[string]any)
	if in["action"] != "working" || in["agent_id"] != a {
		t.Errorf("unexpected intent: %v", in)
	}
	agent, err := env.svc.Agent(a)
	if err != nil {
		t.Fatal(err)
	}
	if agent.Status != domain.AgentWorking || agent.CurrentTask != "src/auth.go" {
		t.Errorf("expected agent working on src/auth.go, got %s/%s", agent.Status, agent.CurrentTask)
	}

	body = mustCall(t, env.srv, "read_intents", nil)
	if n := len(body["intents"].([]any)); n != 1 {
		t.Errorf("expected 1 intent, got %d", n)
	}
}

func TestPostIntent_Validation(t *testing.T) {
	env := newTestEnv(t)
	a := join(t, env, "Alice", "backend")

	for _, action := range []string{"", "dancing", "target_set"} {
		if _, err := callTool(t, env.srv, "post_intent", map[string]any{"agent_id": a, "action": action, "description": "x"}); err == nil {
			t.Errorf("expected error for action %q", action)
		}
	}
	body := mustCall(t, env.srv, "post_intent", map[string]any{"action": "blocked", "description": "stuck"})
	if body["reason"] != "no_agent" {
		t.Errorf("expected no_agent, got %v", body)
	}
}

func TestSubscribeChanges(t *testing.T) {
	env := newTestEnv(t)
	a := join(t, env, "Alice", "backend")
	mustCall(t, env.srv, "lock_file", map[string]any{"agent_id": a, "path": "a.go"})

	body := mustCall(t, env.srv, "subscribe_changes", map[string]any{"since_version": 0})
	if body["changed"] != true {
		t.Fatalf("expected changes since 0, got %v", body)
	}
	for _, key := range []string{"agents", "locks", "intents", "workQueue"} {
		if _, ok := body[key]; !ok {
			t.Errorf("expected %s in snapshot", key)
		}
	}
	version := body["version"].(float64)

	body = mustCall(t, env.srv, "subscribe_changes", map[string]any{"since_version": version})
	if body["changed"] != false || body["version"].(float64) != version {
		t.Errorf("expected unchanged at %v, got %v", version, body)
	}
	if len(body) != 2 {
		t.Errorf("expected only changed and version, got %v", body)
	}
}

type fakeArchive struct {
	queries      []string
	recentLimits []int
	hits         []domain.Intent
}

func (f *fakeArchive) AppendIntent(domain.Intent) error { return nil }
func (f *fakeArchive) RecentIntents(limit int) ([]domain.Intent, error) {
	f.recentLimits = append(f.recentLimits, limit)
	return f.hits, nil
}
func (f *fakeArchive) SearchIntents(q string, limit int) ([]domain.Intent, error) {
	f.queries = append(f.queries, q)
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}
func (f *fakeArchive) Close() error { return nil }

func TestSearchIntents(t *testing.T) {
	archive := &fakeArchive{hits: []domain.Intent{
		{ID: 7, AgentID: "a", Action: domain.IntentHandoff, Description: "API ready", Target: "frontend"},
		{ID: 9, AgentID: "a", Action: domain.IntentCompleted, Description: "Completed: API"},
	}}
	env := newTestEnv(t, WithArchive(archive))

	body := mustCall(t, env.srv, "search_intents", map[string]any{"query": "api", "limit": 1})
	hits := body["intents"].([]any)
	if len(hits) != 1 || hits[0].(map[string]any)["description"] != "API ready" {
		t.Errorf("unexpected hits: %v", hits)
	}
	if len(archive.queries) != 1 || archive.queries[0] != "api" {
		t.Errorf("expected query forwarded, got %v", archive.queries)
	}
}

func TestSearchIntents_NotRegisteredWithoutArchive(t *testing.T) {
	env := newTestEnv(t)
	_, err := callTool(t, env.srv, "search_intents", map[string]any{"query": "api"})
	if err == nil {
		t.Errorf("expected unknown tool error, got %v", err)
	}
}

func TestReadIntents_Archived(t *testing.T) {
	archive := &fakeArchive{hits: []domain.Intent{
		{ID: 1, AgentID: "a", Action: domain.IntentWorking, Description: "old work"},
	}}
	env := newTestEnv(t, WithArchive(archive))

	body := mustCall(t, env.srv, "read_intents", map[string]any{"archived": true, "limit": 5})
	if body["ok"] != true || body["archived"] != true {
		t.Fatalf("expected archived read, got %v", body)
	}
	intents := body["intents"].([]any)
	if len(intents) != 1 || intents[0].(map[string]any)["description"] != "old work" {
		t.Errorf("unexpected intents: %v", intents)
	}
	if len(archive.recentLimits) != 1 || archive.recentLimits[0] != 5 {
		t.Errorf("expected limit 5 forwarded, got %v", archive.recentLimits)
	}

	// Without the flag the live log is read.
	body = mustCall(t, env.srv, "read_intents", nil)
	if body["archived"] != nil || len(body["intents"].([]any)) != 0 {
		t.Errorf("expected empty live log, got %v", body)
	}
}

func TestReadIntents_ArchivedWithoutJournal(t *testing.T) {
	env := newTestEnv(t)
	body := mustCall(t, env.srv, "read_intents", map[string]any{"archived": true})
	if body["ok"] != false || body["reason"] != "no_archive" {
		t.Errorf("expected no_archive failure, got %v", body)
	}
}
