package app

import (
	"encoding/json"
	"sort"
	"sync/atomic"

	"github.com/jaakkos/cowork/internal/domain"
)

// VersionClock is the monotonic state version. Zero means "nothing happened yet".
type VersionClock struct {
	v atomic.Uint64
}

// Bump advances the clock and returns the new version.
func (c *VersionClock) Bump() uint64 { return c.v.Add(1) }

// Current returns the latest version.
func (c *VersionClock) Current() uint64 { return c.v.Load() }

// LockView is a live lock plus its remaining lifetime.
type LockView struct {
	domain.Lock
	RemainingMs int64 `json:"remaining_ms"`
}

// ChangeSet answers "what changed since version N". When Changed is false only
// the current version is meaningful.
type ChangeSet struct {
	Changed   bool              `json:"changed"`
	Version   uint64            `json:"version"`
	Agents    []domain.Agent    `json:"agents"`
	Locks     []LockView        `json:"locks"`
	Intents   []domain.Intent   `json:"intents"`
	WorkQueue []domain.WorkItem `json:"workQueue"`
}

// MarshalJSON renders the short {changed,version} form for an unchanged set.
func (c ChangeSet) MarshalJSON() ([]byte, error) {
	if !c.Changed {
		return json.Marshal(struct {
			Changed bool   `json:"changed"`
			Version uint64 `json:"version"`
		}{false, c.Version})
	}
	type full ChangeSet
	return json.Marshal(full(c))
}

// Changes returns a snapshot delta when the state moved past since.
// The snapshot carries all agents, all live locks, the last ChangesTail
// intents and the full work queue.
func (s *WorkspaceService) Changes(since uint64) ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.clock.Current()
	if v <= since {
		return ChangeSet{Changed: false, Version: v}
	}
	tail := s.state.Intents
	if n := s.policy.ChangesTail(); len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	return ChangeSet{
		Changed:   true,
		Version:   v,
		Agents:    agentsSnapshot(s.state),
		Locks:     liveLocks(s.state, s.now()),
		Intents:   append([]domain.Intent{}, tail...),
		WorkQueue: workSnapshot(s.state),
	}
}

func agentsSnapshot(state *domain.WorkspaceState) []domain.Agent {
	out := make([]domain.Agent, 0, len(state.Agents))
	for _, a := range state.Agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func workSnapshot(state *domain.WorkspaceState) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(state.Work))
	for _, w := range state.Work {
		out = append(out, copyWork(w))
	}
	return out
}

func copyWork(w *domain.WorkItem) domain.WorkItem {
	c := *w
	if w.Context != nil {
		c.Context = make(map[string]any, len(w.Context))
		for k, v := range w.Context {
			c.Context[k] = v
		}
	}
	return c
}
