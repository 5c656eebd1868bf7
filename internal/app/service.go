package app

import (
	"log"
	"sync"
	"time"

	"github.com/jaakkos/cowork/internal/domain"
)

// ChangeEvent is published after every state change, in version order.
type ChangeEvent struct {
	Version uint64    `json:"version"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// WorkspaceService runs coordination use cases over the in-memory workspace
// state. Every operation is linearized by a single mutex; a mutation that
// succeeds bumps the version clock exactly once and publishes a ChangeEvent.
type WorkspaceService struct {
	mu      sync.Mutex
	state   *domain.WorkspaceState
	policy  Policy
	logger  *log.Logger
	clock   VersionClock
	changes *Broker[ChangeEvent]
	journal IntentSink
	now     func() time.Time

	// intents appended by the current mutation, handed to the journal after unlock
	pending []domain.Intent
}

// ServiceOption configures the service.
type ServiceOption func(*WorkspaceService)

// WithNow replaces the wall clock (tests use a fake one).
func WithNow(now func() time.Time) ServiceOption {
	return func(s *WorkspaceService) { s.now = now }
}

// WithJournal archives every appended intent to sink.
func WithJournal(sink IntentSink) ServiceOption {
	return func(s *WorkspaceService) { s.journal = sink }
}

// NewWorkspaceService returns a service over an empty workspace.
func NewWorkspaceService(policy Policy, logger *log.Logger, opts ...ServiceOption) *WorkspaceService {
	s := &WorkspaceService{
		state:   domain.NewWorkspaceState(),
		policy:  policy,
		logger:  logger,
		changes: NewBroker[ChangeEvent](16),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run executes fn under the state lock. If fn returns nil the change is
// recorded (version bump + ChangeEvent tagged with reason).
// Caller must not retain state after fn returns.
func (s *WorkspaceService) Run(reason string, fn func(*domain.WorkspaceState) error) error {
	return s.mutate(reason, func(state *domain.WorkspaceState) (bool, error) {
		if err := fn(state); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Query runs fn under the state lock without recording a change.
func (s *WorkspaceService) Query(fn func(*domain.WorkspaceState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// mutate runs fn and records a change whenever fn reports changed, even when
// it also returns an error (e.g. an expired lock cleaned up on release).
func (s *WorkspaceService) mutate(reason string, fn func(*domain.WorkspaceState) (bool, error)) error {
	s.mu.Lock()
	changed, err := fn(s.state)
	if changed {
		s.recordLocked(reason)
	}
	intents := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.archive(intents)
	return err
}

// RecordChange bumps the version for a change that happened outside the
// workspace state (document sessions opening or closing).
func (s *WorkspaceService) RecordChange(reason string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(reason)
}

func (s *WorkspaceService) recordLocked(reason string) uint64 {
	v := s.clock.Bump()
	s.changes.Publish(ChangeEvent{Version: v, Reason: reason, At: s.now()})
	return v
}

// Subscribe returns a stream of change events and a cancel func.
func (s *WorkspaceService) Subscribe() (<-chan ChangeEvent, func()) {
	return s.changes.Subscribe()
}

// Version returns the current state version.
func (s *WorkspaceService) Version() uint64 {
	return s.clock.Current()
}

// Now returns the service clock's current time.
func (s *WorkspaceService) Now() time.Time {
	return s.now()
}

// Policy returns the policy for handlers that need limits.
func (s *WorkspaceService) Policy() Policy { return s.policy }

func (s *WorkspaceService) archive(intents []domain.Intent) {
	if s.journal == nil {
		return
	}
	for _, in := range intents {
		if err := s.journal.AppendIntent(in); err != nil {
			s.logger.Printf("Journal: append intent %d failed: %v", in.ID, err)
		}
	}
}

// isolate runs fn and recovers a panic so one bad record cannot abort a sweep.
func (s *WorkspaceService) isolate(what string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Sweep: %s panicked: %v", what, r)
			ok = false
		}
	}()
	fn()
	return true
}
