package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jaakkos/cowork/internal/domain"
)

const defaultDebounce = 250 * time.Millisecond

// WorkspaceChangedParams is the payload for notifications/workspace_changed.
type WorkspaceChangedParams struct {
	Version uint64 `json:"version"`
	Reason  string `json:"reason"`
	Summary string `json:"summary"`
}

// Notifier turns the service's change events into throttled pushes: at most
// one push per debounce window, and a steady stream of changes still gets
// one push per window. Each push goes to in-process listeners (SSE streams),
// to MCP sessions through pushFunc and to the signal file.
type Notifier struct {
	svc        *WorkspaceService
	logger     *log.Logger
	debounce   time.Duration
	signalPath string
	pushFunc   func(method string, params any) error

	mu         sync.Mutex
	listeners  map[int]func(ChangeSet)
	nextID     int
	timer      *time.Timer
	lastReason string
	lastPushed uint64
	lastPushAt time.Time

	events      <-chan ChangeEvent
	unsubscribe func()

	pushMu sync.Mutex // serializes pushes so listeners see versions in order
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	started bool // guarded by mu
	stopped bool // guarded by mu
}

// NotifierOption configures the notifier.
type NotifierOption func(*Notifier)

// WithDebounce sets the minimum spacing between pushes.
func WithDebounce(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.debounce = d
		}
	}
}

// WithSignalFile makes every push write the version to path.
func WithSignalFile(path string) NotifierOption {
	return func(n *Notifier) { n.signalPath = path }
}

// WithPushFunc sets the MCP push hook, called with method
// "notifications/workspace_changed" and WorkspaceChangedParams.
func WithPushFunc(fn func(method string, params any) error) NotifierOption {
	return func(n *Notifier) { n.pushFunc = fn }
}

// NewNotifier creates a notifier for svc.
func NewNotifier(svc *WorkspaceService, logger *log.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		svc:       svc,
		logger:    logger,
		debounce:  defaultDebounce,
		listeners: make(map[int]func(ChangeSet)),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	n.events, n.unsubscribe = svc.Subscribe()
	return n
}

// Start consumes change events (subscribed at construction) until ctx is cancelled or Stop is called.
// Start after Stop returns at once.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.stopped || n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()
	defer close(n.doneCh)
	defer n.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case ev, ok := <-n.events:
			if !ok {
				return
			}
			n.schedule(ev.Reason)
		}
	}
}

// Stop signals the notifier to stop and cancels a pending push. It waits for
// Start to return when Start ran; otherwise it drops the subscription itself.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	started := n.started
	n.mu.Unlock()
	n.once.Do(func() { close(n.stopCh) })
	if started {
		<-n.doneCh
	} else {
		n.unsubscribe()
	}
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()
}

// AddListener registers fn to receive a snapshot on every push.
// The returned func removes it.
func (n *Notifier) AddListener(fn func(ChangeSet)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// Trigger schedules a push even if the version has not moved since the last one.
func (n *Notifier) Trigger() {
	n.mu.Lock()
	n.lastPushed = 0
	n.mu.Unlock()
	n.schedule("trigger")
}

// pushNow pushes immediately, bypassing the throttle.
func (n *Notifier) pushNow() {
	n.mu.Lock()
	reason := n.lastReason
	n.mu.Unlock()
	n.push(reason)
}

func (n *Notifier) schedule(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastReason = reason
	if n.timer != nil {
		return // a push is already due; it will carry this change too
	}
	wait := n.debounce - time.Since(n.lastPushAt)
	if wait < 0 {
		wait = 0
	}
	n.timer = time.AfterFunc(wait, func() {
		n.mu.Lock()
		n.timer = nil
		reason := n.lastReason
		n.mu.Unlock()
		n.push(reason)
	})
}

func (n *Notifier) push(reason string) {
	n.pushMu.Lock()
	defer n.pushMu.Unlock()

	n.mu.Lock()
	last := n.lastPushed
	n.mu.Unlock()
	cs := n.svc.Changes(0)
	if cs.Version == 0 || cs.Version == last {
		return
	}

	n.mu.Lock()
	listeners := make([]func(ChangeSet), 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.lastPushed = cs.Version
	n.lastPushAt = time.Now()
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(cs)
	}
	if n.pushFunc != nil {
		params := WorkspaceChangedParams{Version: cs.Version, Reason: reason, Summary: buildSummary(cs)}
		if err := n.pushFunc("notifications/workspace_changed", params); err != nil {
			n.logger.Printf("Notifier: push failed: %v", err)
		}
	}
	if err := TouchNotifySignal(n.signalPath, cs.Version); err != nil {
		n.logger.Printf("Notifier: signal file: %v", err)
	}
}

func buildSummary(cs ChangeSet) string {
	pending := 0
	for _, w := range cs.WorkQueue {
		if w.Status == domain.WorkPending {
			pending++
		}
	}
	return fmt.Sprintf("v%d: %d agent(s), %d lock(s), %d pending work item(s)",
		cs.Version, len(cs.Agents), len(cs.Locks), pending)
}
