package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Locks.DefaultTTLMs != 300000 {
		t.Errorf("expected default lock ttl 300000ms, got %d", cfg.Locks.DefaultTTLMs)
	}
	if cfg.Locks.ReclaimIntervalMs != 5000 {
		t.Errorf("expected reclaim interval 5000ms, got %d", cfg.Locks.ReclaimIntervalMs)
	}
	if cfg.Queue.StaleAfterSeconds != 600 {
		t.Errorf("expected stale-after 600s, got %d", cfg.Queue.StaleAfterSeconds)
	}
	if cfg.Intents.MaxEntries != 50 {
		t.Errorf("expected intent cap 50, got %d", cfg.Intents.MaxEntries)
	}
	if cfg.Docs.IdleSeconds != 60 {
		t.Errorf("expected doc idle window 60s, got %d", cfg.Docs.IdleSeconds)
	}
	if len(cfg.EnabledTools) != 1 || cfg.EnabledTools[0] != "*" {
		t.Errorf("expected enabled_tools [*], got %v", cfg.EnabledTools)
	}
}

func TestPolicyDurations_FallBackWhenUnset(t *testing.T) {
	pol := New(&Config{})

	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"DefaultLockTTL", pol.DefaultLockTTL(), 5 * time.Minute},
		{"MaxLockTTL", pol.MaxLockTTL(), time.Hour},
		{"LockReclaimInterval", pol.LockReclaimInterval(), 5 * time.Second},
		{"StaleWorkAfter", pol.StaleWorkAfter(), 10 * time.Minute},
		{"StaleWorkInterval", pol.StaleWorkInterval(), time.Minute},
		{"DocGCInterval", pol.DocGCInterval(), 15 * time.Second},
		{"DocIdleWindow", pol.DocIdleWindow(), time.Minute},
		{"NotifyDebounce", pol.NotifyDebounce(), 250 * time.Millisecond},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if pol.IntentMaxEntries() != 50 {
		t.Errorf("IntentMaxEntries = %d, want 50", pol.IntentMaxEntries())
	}
	if pol.ChangesTail() != 10 {
		t.Errorf("ChangesTail = %d, want 10", pol.ChangesTail())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cowork.yaml")
	data := []byte(`
workspace_root: /srv/project
http_port: 0
locks:
  default_ttl_ms: 2000
queue:
  stale_after_seconds: 30
journal:
  enabled: true
  path: /tmp/j.sqlite
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WorkspaceRoot != "/srv/project" {
		t.Errorf("workspace_root = %q", cfg.WorkspaceRoot)
	}
	if cfg.Locks.DefaultTTLMs != 2000 {
		t.Errorf("default_ttl_ms = %d", cfg.Locks.DefaultTTLMs)
	}
	// Fields not present in the file keep their defaults.
	if cfg.Locks.MaxTTLMs != 3600000 {
		t.Errorf("max_ttl_ms = %d, want default", cfg.Locks.MaxTTLMs)
	}
	pol := New(cfg)
	if pol.StaleWorkAfter() != 30*time.Second {
		t.Errorf("StaleWorkAfter = %s", pol.StaleWorkAfter())
	}
	if !pol.JournalEnabled() || pol.JournalPath() != "/tmp/j.sqlite" {
		t.Errorf("journal = %v %q", pol.JournalEnabled(), pol.JournalPath())
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("locks: [not, a, map"), 0o644)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestNormalizeResourcePath(t *testing.T) {
	tmpDir := t.TempDir()
	pol := New(&Config{WorkspaceRoot: tmpDir})

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"relative path", "src/auth.ts", "src/auth.ts", false},
		{"redundant segments", "./src//api/../auth.ts", "src/auth.ts", false},
		{"absolute inside workspace", filepath.Join(tmpDir, "f.ts"), "f.ts", false},
		{"escaping workspace", "../outside.go", "", true},
		{"absolute outside workspace", "/etc/passwd", "", true},
		{"empty", "  ", "", true},
		{"workspace root itself", ".", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pol.NormalizeResourcePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeResourcePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeResourcePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsToolEnabled(t *testing.T) {
	tests := []struct {
		name         string
		enabledTools []string
		toolName     string
		want         bool
	}{
		{"wildcard", []string{"*"}, "lock_file", true},
		{"listed", []string{"lock_file", "poll_work"}, "poll_work", true},
		{"not listed", []string{"lock_file"}, "create_doc", false},
		{"empty list", nil, "lock_file", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := New(&Config{EnabledTools: tt.enabledTools})
			if got := pol.IsToolEnabled(tt.toolName); got != tt.want {
				t.Errorf("IsToolEnabled(%q) = %v, want %v", tt.toolName, got, tt.want)
			}
		})
	}
}

func TestLogFile(t *testing.T) {
	pol := New(&Config{})
	if filepath.Base(pol.LogFile()) != "cowork.log" {
		t.Errorf("default LogFile = %q", pol.LogFile())
	}
	pol = New(&Config{LogFile: "off"})
	if pol.LogFile() != "off" {
		t.Errorf("LogFile = %q, want off", pol.LogFile())
	}
}
