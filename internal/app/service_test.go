package app

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaakkos/cowork/internal/domain"
)

type memorySink struct {
	mu      sync.Mutex
	intents []domain.Intent
}

func (m *memorySink) AppendIntent(in domain.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = append(m.intents, in)
	return nil
}

func TestRun_BumpsVersionOncePerMutation(t *testing.T) {
	svc, _ := testService(t)
	if svc.Version() != 0 {
		t.Fatalf("fresh service version = %d, want 0", svc.Version())
	}
	_ = svc.Run("test", func(state *domain.WorkspaceState) error {
		state.Handoffs["a"] = domain.RoleFrontend
		state.Handoffs["b"] = domain.RoleTester
		return nil
	})
	if svc.Version() != 1 {
		t.Errorf("version = %d, want 1", svc.Version())
	}

	wantErr := errors.New("boom")
	if err := svc.Run("test", func(*domain.WorkspaceState) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Run error = %v, want %v", err, wantErr)
	}
	_ = svc.Query(func(*domain.WorkspaceState) error { return nil })
	if svc.Version() != 1 {
		t.Errorf("failed Run and Query must not bump, version = %d", svc.Version())
	}
}

func TestSubscribe_ReceivesEventsInOrder(t *testing.T) {
	svc, clock := testService(t)
	events, cancel := svc.Subscribe()
	defer cancel()

	_ = svc.Run("first", func(*domain.WorkspaceState) error { return nil })
	svc.RecordChange("doc_created")

	ev := <-events
	if ev.Version != 1 || ev.Reason != "first" || !ev.At.Equal(clock.Now()) {
		t.Errorf("first event = %+v", ev)
	}
	ev = <-events
	if ev.Version != 2 || ev.Reason != "doc_created" {
		t.Errorf("second event = %+v", ev)
	}
}

func TestChanges(t *testing.T) {
	svc, clock := testService(t)

	cs := svc.Changes(0)
	if cs.Changed || cs.Version != 0 {
		t.Fatalf("empty workspace Changes(0) = %+v", cs)
	}

	a := mustJoin(t, svc, "alice", domain.RoleBackend, false)
	if _, err := svc.AcquireLock(a, "short.go", time.Second, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcquireLock(a, "long.go", time.Hour, ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 15; i++ {
		if _, err := svc.PostIntent(a, domain.IntentWorking, "step", ""); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(2 * time.Second)

	v := svc.Version()
	if got := svc.Changes(v); got.Changed || got.Version != v {
		t.Errorf("Changes(current) = %+v, want unchanged", got)
	}
	cs = svc.Changes(v - 1)
	if !cs.Changed || cs.Version != v {
		t.Fatalf("Changes(v-1) = changed %v version %d", cs.Changed, cs.Version)
	}
	if len(cs.Agents) != 1 {
		t.Errorf("agents = %d, want 1", len(cs.Agents))
	}
	if len(cs.Locks) != 1 || cs.Locks[0].Path != "long.go" {
		t.Errorf("locks = %+v, want only the live long.go lock", cs.Locks)
	}
	if len(cs.Intents) != 10 {
		t.Errorf("intents tail = %d, want 10", len(cs.Intents))
	}
}

func TestChangeSetJSON_UnchangedIsShort(t *testing.T) {
	data, err := json.Marshal(ChangeSet{Changed: false, Version: 7})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"changed":false,"version":7}` {
		t.Errorf("unchanged JSON = %s", data)
	}
	data, _ = json.Marshal(ChangeSet{Changed: true, Version: 8, WorkQueue: []domain.WorkItem{}})
	if !strings.Contains(string(data), `"workQueue":[]`) {
		t.Errorf("changed JSON missing workQueue: %s", data)
	}
}

func TestJournal_ReceivesAppendedIntents(t *testing.T) {
	sink := &memorySink{}
	svc, _ := testService(t, WithJournal(sink))
	a := mustJoin(t, svc, "alice", domain.RoleBackend, false)
	if _, err := svc.PostIntent(a, domain.IntentBlocked, "waiting on schema", ""); err != nil {
		t.Fatal(err)
	}
	if len(sink.intents) != 1 || sink.intents[0].Description != "waiting on schema" {
		t.Errorf("journal = %+v", sink.intents)
	}
}
