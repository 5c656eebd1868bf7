package app

import (
	"fmt"
	"sort"
	"time"

	"github.com/jaakkos/cowork/internal/domain"
)

// LockResult is the outcome of an acquire or renew.
type LockResult struct {
	Granted     bool      `json:"granted"`
	Path        string    `json:"path"`
	Holder      string    `json:"holder,omitempty"`
	HolderName  string    `json:"holder_name,omitempty"`
	RemainingMs int64     `json:"remaining_ms,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Reentrant   bool      `json:"reentrant,omitempty"`
}

func (s *WorkspaceService) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.policy.DefaultLockTTL()
	}
	if max := s.policy.MaxLockTTL(); ttl > max {
		return max
	}
	return ttl
}

// AcquireLock grants agentID an advisory lock on path for ttl (policy default
// when zero). A live lock held by someone else is a denial, reported in the
// result with the holder and its remaining time; an expired one is taken over.
// Re-acquiring your own lock refreshes it.
func (s *WorkspaceService) AcquireLock(agentID, path string, ttl time.Duration, reason string) (LockResult, error) {
	path, err := s.policy.NormalizeResourcePath(path)
	if err != nil {
		return LockResult{}, err
	}
	ttl = s.clampTTL(ttl)

	var res LockResult
	err = s.mutate("lock_acquire", func(state *domain.WorkspaceState) (bool, error) {
		agent, err := s.requireAgent(state, agentID)
		if err != nil {
			return false, err
		}
		now := s.now()
		res.Path = path
		if existing := state.Locks[path]; existing != nil {
			if !existing.Expired(now) && existing.Holder != agentID {
				res.Holder = existing.Holder
				if h := state.Agents[existing.Holder]; h != nil {
					res.HolderName = h.DisplayName
				}
				res.RemainingMs = existing.ExpiresAt.Sub(now).Milliseconds()
				res.ExpiresAt = existing.ExpiresAt
				return false, nil
			}
			if existing.Holder == agentID && !existing.Expired(now) {
				res.Reentrant = true
			} else {
				dropLock(state, existing)
			}
		}
		lock := &domain.Lock{
			Path:      path,
			Holder:    agentID,
			Client:    agent.ClientKind,
			Role:      agent.Role,
			LockedAt:  now,
			ExpiresAt: now.Add(ttl),
			Reason:    reason,
		}
		state.Locks[path] = lock
		agent.Status = domain.AgentWorking
		agent.CurrentTask = path

		res.Granted = true
		res.Holder = agentID
		res.HolderName = agent.DisplayName
		res.RemainingMs = ttl.Milliseconds()
		res.ExpiresAt = lock.ExpiresAt
		return true, nil
	})
	return res, err
}

// ReleaseLock removes agentID's lock on path. A non-empty handoffTo or message
// records a handoff intent, which opens the dependency gate for handoffTo
// while it stays in the log; handoffTo is also kept in Handoffs by path. An absent or expired lock is not-found; a live lock held by another
// agent is a not_holder denial.
func (s *WorkspaceService) ReleaseLock(agentID, path string, handoffTo domain.Role, message string) error {
	path, err := s.policy.NormalizeResourcePath(path)
	if err != nil {
		return err
	}
	return s.mutate("lock_release", func(state *domain.WorkspaceState) (bool, error) {
		agent, err := s.requireAgent(state, agentID)
		if err != nil {
			return false, err
		}
		now := s.now()
		lock := state.Locks[path]
		if lock == nil {
			return false, fmt.Errorf("lock %s: %w", path, ErrNotFound)
		}
		if lock.Expired(now) {
			dropLock(state, lock)
			return true, fmt.Errorf("lock %s expired: %w", path, ErrNotFound)
		}
		if lock.Holder != agentID {
			de := denied(ReasonNotHolder, "%s is locked by %s", path, lock.Holder)
			de.Holder = lock.Holder
			de.RemainingMs = lock.ExpiresAt.Sub(now).Milliseconds()
			return false, de
		}
		delete(state.Locks, path)
		agent.Status = domain.AgentIdle
		agent.CurrentTask = ""

		if handoffTo != "" || message != "" {
			desc := message
			if desc == "" {
				desc = fmt.Sprintf("Released %s", path)
			}
			s.appendIntent(state, domain.Intent{
				AgentID:     agentID,
				Action:      domain.IntentHandoff,
				Description: desc,
				Target:      string(handoffTo),
			})
			if handoffTo != "" {
				state.Handoffs[path] = handoffTo
			}
		}
		return true, nil
	})
}

// RenewLock extends a lock agentID holds to now+ttl.
func (s *WorkspaceService) RenewLock(agentID, path string, ttl time.Duration) (LockResult, error) {
	path, err := s.policy.NormalizeResourcePath(path)
	if err != nil {
		return LockResult{}, err
	}
	ttl = s.clampTTL(ttl)

	var res LockResult
	err = s.mutate("lock_renew", func(state *domain.WorkspaceState) (bool, error) {
		agent, err := s.requireAgent(state, agentID)
		if err != nil {
			return false, err
		}
		now := s.now()
		lock := state.Locks[path]
		if lock == nil {
			return false, fmt.Errorf("lock %s: %w", path, ErrNotFound)
		}
		if lock.Expired(now) {
			dropLock(state, lock)
			return true, fmt.Errorf("lock %s expired: %w", path, ErrNotFound)
		}
		if lock.Holder != agentID {
			de := denied(ReasonNotHolder, "%s is locked by %s", path, lock.Holder)
			de.Holder = lock.Holder
			de.RemainingMs = lock.ExpiresAt.Sub(now).Milliseconds()
			return false, de
		}
		lock.ExpiresAt = now.Add(ttl)
		res = LockResult{
			Granted:     true,
			Path:        path,
			Holder:      agentID,
			HolderName:  agent.DisplayName,
			RemainingMs: ttl.Milliseconds(),
			ExpiresAt:   lock.ExpiresAt,
		}
		return true, nil
	})
	return res, err
}

// CheckLock returns the live lock on path, if any.
func (s *WorkspaceService) CheckLock(path string) (LockView, bool, error) {
	path, err := s.policy.NormalizeResourcePath(path)
	if err != nil {
		return LockView{}, false, err
	}
	var (
		view LockView
		ok   bool
	)
	err = s.Query(func(state *domain.WorkspaceState) error {
		lock := state.Locks[path]
		now := s.now()
		if lock == nil || lock.Expired(now) {
			return nil
		}
		view = LockView{Lock: *lock, RemainingMs: lock.ExpiresAt.Sub(now).Milliseconds()}
		ok = true
		return nil
	})
	return view, ok, err
}

// ListLocks returns all live locks ordered by path.
func (s *WorkspaceService) ListLocks() []LockView {
	var out []LockView
	_ = s.Query(func(state *domain.WorkspaceState) error {
		out = liveLocks(state, s.now())
		return nil
	})
	return out
}

// ReclaimExpiredLocks deletes every expired lock, returns its holder to idle
// when the lock was its current task and records a handoff intent per lock.
// It returns the number of locks reclaimed; the version moves only when that
// is non-zero.
func (s *WorkspaceService) ReclaimExpiredLocks() int {
	reclaimed := 0
	_ = s.mutate("lock_reclaim", func(state *domain.WorkspaceState) (bool, error) {
		now := s.now()
		for _, lock := range expiredLocks(state, now) {
			lock := lock
			s.isolate("reclaim lock "+lock.Path, func() {
				dropLock(state, lock)
				holder := lock.Holder
				if a := state.Agents[lock.Holder]; a != nil {
					holder = a.DisplayName
				}
				s.appendIntent(state, domain.Intent{
					AgentID:     lock.Holder,
					Action:      domain.IntentHandoff,
					Description: fmt.Sprintf("Lock on %s expired (held by %s)", lock.Path, holder),
				})
				reclaimed++
			})
		}
		return reclaimed > 0, nil
	})
	if reclaimed > 0 {
		s.logger.Printf("Sweep: reclaimed %d expired lock(s)", reclaimed)
	}
	return reclaimed
}

// dropLock deletes lock and returns its holder to idle if it was working on the path.
func dropLock(state *domain.WorkspaceState, lock *domain.Lock) {
	delete(state.Locks, lock.Path)
	if a := state.Agents[lock.Holder]; a != nil && a.CurrentTask == lock.Path {
		a.Status = domain.AgentIdle
		a.CurrentTask = ""
	}
}

func expiredLocks(state *domain.WorkspaceState, now time.Time) []*domain.Lock {
	var out []*domain.Lock
	for _, l := range state.Locks {
		if l.Expired(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func liveLocks(state *domain.WorkspaceState, now time.Time) []LockView {
	out := []LockView{}
	for _, l := range state.Locks {
		if l.Expired(now) {
			continue
		}
		out = append(out, LockView{Lock: *l, RemainingMs: l.ExpiresAt.Sub(now).Milliseconds()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
