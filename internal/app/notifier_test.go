package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jaakkos/cowork/internal/domain"
)

type pushRecorder struct {
	mu       sync.Mutex
	times    []time.Time
	versions []uint64
	methods  []string
}

func (r *pushRecorder) listener(cs ChangeSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, time.Now())
	r.versions = append(r.versions, cs.Version)
}

func (r *pushRecorder) push(method string, params any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append(r.methods, method)
	return nil
}

func (r *pushRecorder) lastVersion() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.versions) == 0 {
		return 0
	}
	return r.versions[len(r.versions)-1]
}

func TestNotifier_ThrottlesBursts(t *testing.T) {
	svc, _ := testService(t)
	signal := filepath.Join(t.TempDir(), ".cowork-notify")
	rec := &pushRecorder{}
	debounce := 40 * time.Millisecond
	n := NewNotifier(svc, testLogger(), WithDebounce(debounce), WithSignalFile(signal), WithPushFunc(rec.push))
	remove := n.AddListener(rec.listener)
	defer remove()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Start(ctx)
	defer n.Stop()

	a := mustJoin(t, svc, "ann", domain.RoleBackend, false)
	for i := 0; i < 30; i++ {
		_, _ = svc.PostIntent(a, domain.IntentWorking, "burst", "")
	}
	final := svc.Version()

	deadline := time.After(3 * time.Second)
	for rec.lastVersion() != final {
		select {
		case <-deadline:
			t.Fatalf("last pushed version = %d, want %d", rec.lastVersion(), final)
		case <-time.After(10 * time.Millisecond):
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.versions) >= 31 {
		t.Errorf("%d pushes for 31 changes, expected coalescing", len(rec.versions))
	}
	for i := 1; i < len(rec.times); i++ {
		if gap := rec.times[i].Sub(rec.times[i-1]); gap < debounce-5*time.Millisecond {
			t.Errorf("pushes %d and %d only %s apart", i-1, i, gap)
		}
	}
	for _, m := range rec.methods {
		if m != "notifications/workspace_changed" {
			t.Errorf("method = %q", m)
		}
	}
	if v, ok := ReadSignalVersion(signal); !ok || v != final {
		t.Errorf("signal file version = %d, %v, want %d", v, ok, final)
	}
}

func TestNotifier_pushNowSkipsUnchangedVersion(t *testing.T) {
	svc, _ := testService(t)
	rec := &pushRecorder{}
	n := NewNotifier(svc, testLogger())
	n.AddListener(rec.listener)

	n.pushNow()
	if len(rec.versions) != 0 {
		t.Fatal("nothing happened yet, nothing to push")
	}
	mustJoin(t, svc, "ann", domain.RoleBackend, false)
	n.pushNow()
	n.pushNow()
	if len(rec.versions) != 1 || rec.versions[0] != 1 {
		t.Errorf("versions = %v, want [1]", rec.versions)
	}
}

func TestNotifier_TriggerRepushesCurrentVersion(t *testing.T) {
	svc, _ := testService(t)
	rec := &pushRecorder{}
	n := NewNotifier(svc, testLogger(), WithDebounce(5*time.Millisecond))
	n.AddListener(rec.listener)

	mustJoin(t, svc, "ann", domain.RoleBackend, false)
	n.pushNow()
	n.Trigger()

	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		got := len(rec.versions)
		rec.mu.Unlock()
		if got == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pushes = %d, want 2", got)
		case <-time.After(5 * time.Millisecond):
		}
	}
	if rec.lastVersion() != 1 {
		t.Errorf("version = %d, want 1", rec.lastVersion())
	}
}

func TestNotifier_StopWithoutStart(t *testing.T) {
	svc, _ := testService(t)
	n := NewNotifier(svc, testLogger())
	done := make(chan struct{})
	go func() {
		n.Stop()
		n.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
	mustJoin(t, svc, "ann", domain.RoleBackend, false)
}
