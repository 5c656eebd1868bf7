package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TouchNotifySignal writes the current state version to the signal file so
// out-of-process watchers can detect changes. Creates parent dir and file if needed.
func TouchNotifySignal(signalPath string, version uint64) error {
	if signalPath == "" {
		return nil
	}
	dir := filepath.Dir(signalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signal file dir: %w", err)
	}
	return os.WriteFile(signalPath, []byte(strconv.FormatUint(version, 10)), 0644)
}

// ReadSignalVersion returns the version stored in the signal file.
func ReadSignalVersion(signalPath string) (uint64, bool) {
	data, err := os.ReadFile(signalPath)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SignalWatcher calls back whenever the version in a signal file moves.
// It uses fsnotify on the file's directory with a poll fallback.
type SignalWatcher struct {
	path         string
	logger       *log.Logger
	pollInterval time.Duration
}

// NewSignalWatcher creates a watcher for signalPath.
func NewSignalWatcher(signalPath string, logger *log.Logger, pollInterval time.Duration) *SignalWatcher {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &SignalWatcher{path: signalPath, logger: logger, pollInterval: pollInterval}
}

// Watch blocks until ctx is cancelled, calling fn with each new version.
// The version present when Watch starts is reported first.
func (w *SignalWatcher) Watch(ctx context.Context, fn func(version uint64)) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("create signal file dir: %w", err)
	}
	var last uint64
	check := func() {
		if v, ok := ReadSignalVersion(w.path); ok && v != last {
			last = v
			fn(v)
		}
	}
	check()

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Printf("SignalWatcher: fsnotify init failed (%v), using poll-only", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(w.path)); err != nil {
			w.logger.Printf("SignalWatcher: fsnotify add failed (%v), using poll-only", err)
		} else {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	name := filepath.Base(w.path)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			check()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Printf("SignalWatcher: %v", err)
		case <-ticker.C:
			check()
		}
	}
}
