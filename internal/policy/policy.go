// Package policy loads configuration and enforces path rules for shared resources.
package policy

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalStateDir returns the default global state directory (~/.config/cowork).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "cowork")
}

// LockConfig controls advisory lock TTLs and the reclaim sweep.
type LockConfig struct {
	DefaultTTLMs      int `yaml:"default_ttl_ms"`
	MaxTTLMs          int `yaml:"max_ttl_ms"`
	ReclaimIntervalMs int `yaml:"reclaim_interval_ms"`
}

// QueueConfig controls stale-work reclamation.
type QueueConfig struct {
	StaleAfterSeconds    int `yaml:"stale_after_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// IntentConfig controls the intent log.
type IntentConfig struct {
	MaxEntries  int `yaml:"max_entries"`
	ChangesTail int `yaml:"changes_tail"` // intents included in a change delta
}

// DocsConfig controls collaborative document session garbage collection.
type DocsConfig struct {
	GCIntervalSeconds int `yaml:"gc_interval_seconds"`
	IdleSeconds       int `yaml:"idle_seconds"`
}

// NotifyConfig controls push throttling and the cross-process signal file.
type NotifyConfig struct {
	DebounceMs int    `yaml:"debounce_ms"`
	SignalFile string `yaml:"signal_file"`
}

// JournalConfig controls the optional SQLite intent archive.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config holds policy configuration
type Config struct {
	WorkspaceRoot string   `yaml:"workspace_root"`
	EnabledTools  []string `yaml:"enabled_tools"`
	LogFile       string   `yaml:"log_file"`
	HTTPPort      int      `yaml:"http_port"`

	Locks   LockConfig    `yaml:"locks"`
	Queue   QueueConfig   `yaml:"queue"`
	Intents IntentConfig  `yaml:"intents"`
	Docs    DocsConfig    `yaml:"docs"`
	Notify  NotifyConfig  `yaml:"notify"`
	Journal JournalConfig `yaml:"journal"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EnabledTools: []string{"*"},
		HTTPPort:     8943,
		Locks: LockConfig{
			DefaultTTLMs:      300000,
			MaxTTLMs:          3600000,
			ReclaimIntervalMs: 5000,
		},
		Queue: QueueConfig{
			StaleAfterSeconds:    600,
			SweepIntervalSeconds: 60,
		},
		Intents: IntentConfig{
			MaxEntries:  50,
			ChangesTail: 10,
		},
		Docs: DocsConfig{
			GCIntervalSeconds: 15,
			IdleSeconds:       60,
		},
		Notify: NotifyConfig{
			DebounceMs: 250,
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Policy exposes configuration with defaults applied.
type Policy struct {
	config *Config
	mu     sync.RWMutex // protects workspaceRoot for dynamic updates
}

// New creates a new policy
func New(cfg *Config) *Policy {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Policy{config: cfg}
}

// WorkspaceRoot returns the current workspace root.
func (p *Policy) WorkspaceRoot() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.WorkspaceRoot
}

// SetWorkspaceRoot changes the workspace root at runtime.
func (p *Policy) SetWorkspaceRoot(root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.WorkspaceRoot = root
}

// LogFile returns the configured log file path.
// If unset, defaults to ~/.config/cowork/cowork.log.
// Set to "none" or "off" to disable file logging entirely.
func (p *Policy) LogFile() string {
	if p.config.LogFile == "" {
		return filepath.Join(GlobalStateDir(), "cowork.log")
	}
	return p.config.LogFile
}

// HTTPPort returns the port for the HTTP listener (0 picks a free port).
func (p *Policy) HTTPPort() int {
	return p.config.HTTPPort
}

// IsToolEnabled checks if a tool is enabled
func (p *Policy) IsToolEnabled(name string) bool {
	for _, t := range p.config.EnabledTools {
		if t == "*" || t == name {
			return true
		}
	}
	return false
}

// DefaultLockTTL is used when a caller does not supply a TTL.
func (p *Policy) DefaultLockTTL() time.Duration {
	return msOr(p.config.Locks.DefaultTTLMs, 300000)
}

// MaxLockTTL caps caller-supplied TTLs.
func (p *Policy) MaxLockTTL() time.Duration {
	return msOr(p.config.Locks.MaxTTLMs, 3600000)
}

// LockReclaimInterval is how often expired locks are swept.
func (p *Policy) LockReclaimInterval() time.Duration {
	return msOr(p.config.Locks.ReclaimIntervalMs, 5000)
}

// StaleWorkAfter is how long an assignment may go uncompleted before it reverts to pending.
func (p *Policy) StaleWorkAfter() time.Duration {
	return secondsOr(p.config.Queue.StaleAfterSeconds, 600)
}

// StaleWorkInterval is how often the stale-work sweep runs.
func (p *Policy) StaleWorkInterval() time.Duration {
	return secondsOr(p.config.Queue.SweepIntervalSeconds, 60)
}

// IntentMaxEntries is the intent log cap.
func (p *Policy) IntentMaxEntries() int {
	if p.config.Intents.MaxEntries > 0 {
		return p.config.Intents.MaxEntries
	}
	return 50
}

// ChangesTail is the number of recent intents included in a change delta.
func (p *Policy) ChangesTail() int {
	if p.config.Intents.ChangesTail > 0 {
		return p.config.Intents.ChangesTail
	}
	return 10
}

// DocGCInterval is how often idle document sessions are collected.
func (p *Policy) DocGCInterval() time.Duration {
	return secondsOr(p.config.Docs.GCIntervalSeconds, 15)
}

// DocIdleWindow is how long a session with no sockets survives.
func (p *Policy) DocIdleWindow() time.Duration {
	return secondsOr(p.config.Docs.IdleSeconds, 60)
}

// NotifyDebounce is the minimum spacing between pushes to live subscribers.
func (p *Policy) NotifyDebounce() time.Duration {
	return msOr(p.config.Notify.DebounceMs, 250)
}

// SignalFilePath returns the path of the version signal file watched by out-of-process clients.
func (p *Policy) SignalFilePath() string {
	if p.config.Notify.SignalFile != "" {
		return p.config.Notify.SignalFile
	}
	return filepath.Join(GlobalStateDir(), ".cowork-notify")
}

// JournalEnabled reports whether intents are archived to SQLite.
func (p *Policy) JournalEnabled() bool {
	return p.config.Journal.Enabled
}

// JournalPath returns the intent journal database path.
func (p *Policy) JournalPath() string {
	if p.config.Journal.Path != "" {
		return p.config.Journal.Path
	}
	return filepath.Join(GlobalStateDir(), "journal.sqlite")
}

// NormalizeResourcePath cleans a lock or document path into workspace-relative
// slash form. Absolute paths inside the workspace root are made relative;
// anything that escapes the workspace is rejected.
func (p *Policy) NormalizeResourcePath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}
	root := p.WorkspaceRoot()
	if filepath.IsAbs(raw) {
		if root == "" {
			return "", fmt.Errorf("path %s is outside workspace", raw)
		}
		rel, err := filepath.Rel(root, raw)
		if err != nil {
			return "", fmt.Errorf("relative path: %w", err)
		}
		raw = rel
	}
	cleaned := path.Clean(filepath.ToSlash(raw))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return "", fmt.Errorf("path %s is outside workspace", raw)
	}
	return cleaned, nil
}

func msOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Millisecond
}

func secondsOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
