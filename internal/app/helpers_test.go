package app

import (
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jaakkos/cowork/internal/domain"
	"github.com/jaakkos/cowork/internal/policy"
)

// fakeClock is a manually advanced clock for TTL and staleness tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// testPolicy returns a minimal policy for testing.
func testPolicy() Policy {
	return policy.New(&policy.Config{WorkspaceRoot: "/ws"})
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

// testService returns a service on a fake clock.
func testService(t *testing.T, opts ...ServiceOption) (*WorkspaceService, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]ServiceOption{WithNow(clock.Now)}, opts...)
	return NewWorkspaceService(testPolicy(), testLogger(), opts...), clock
}

func mustJoin(t *testing.T, svc *WorkspaceService, name string, role domain.Role, autonomous bool) string {
	t.Helper()
	res, err := svc.JoinWorkspace(JoinRequest{Name: name, Client: "terminal", Role: role, Autonomous: autonomous})
	if err != nil {
		t.Fatalf("JoinWorkspace(%s): %v", name, err)
	}
	return res.Agent.ID
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		max    int
		expect string
	}{
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"truncate", "hello world", 5, "hello..."},
		{"empty", "", 5, ""},
		{"unicode", "你好世界", 2, "你好..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Truncate(tc.input, tc.max)
			if result != tc.expect {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tc.input, tc.max, result, tc.expect)
			}
		})
	}
}
