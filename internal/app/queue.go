package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jaakkos/cowork/internal/domain"
)

// TargetView is the current target and the items it created.
type TargetView struct {
	domain.Target
	Items []domain.WorkItem `json:"items"`
}

// CompleteResult reports the handoff computed by CompleteWork.
type CompleteResult struct {
	Item       domain.WorkItem `json:"item"`
	NextRole   domain.Role     `json:"next_role,omitempty"`
	NextItemID string          `json:"next_item_id,omitempty"`
}

func newWorkID() string {
	return "w-" + strings.ToLower(ulid.Make().String())
}

// SetTarget records a new goal and enqueues a backend item plus a frontend
// item gated on backend. Empty task descriptions derive from description.
func (s *WorkspaceService) SetTarget(agentID, description, backendTask, frontendTask string) (domain.WorkItem, domain.WorkItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.WorkItem{}, domain.WorkItem{}, fmt.Errorf("description is required")
	}
	if backendTask == "" {
		backendTask = "Backend: " + description
	}
	if frontendTask == "" {
		frontendTask = "Frontend: " + description
	}

	var backend, frontend domain.WorkItem
	err := s.Run("target_set", func(state *domain.WorkspaceState) error {
		now := s.now()
		author := agentID
		if _, ok := state.Agents[agentID]; !ok {
			author = "system"
		}
		targetID := "t-" + strings.ToLower(ulid.Make().String())
		b := &domain.WorkItem{
			ID:          newWorkID(),
			Description: backendTask,
			ForRole:     domain.RoleBackend,
			Status:      domain.WorkPending,
			CreatedAt:   now,
			TargetID:    targetID,
			DependsOn:   domain.NoDependency{},
			Context:     map[string]any{},
		}
		f := &domain.WorkItem{
			ID:          newWorkID(),
			Description: frontendTask,
			ForRole:     domain.RoleFrontend,
			Status:      domain.WorkPending,
			CreatedAt:   now,
			TargetID:    targetID,
			DependsOn:   domain.DependsOnRole{Role: domain.RoleBackend},
			Context:     map[string]any{},
		}
		state.Work = append(state.Work, b, f)
		state.Target = &domain.Target{
			ID:          targetID,
			Description: description,
			ItemIDs:     []string{b.ID, f.ID},
			SetAt:       now,
		}
		s.appendIntent(state, domain.Intent{
			AgentID:     author,
			Action:      domain.IntentTargetSet,
			Description: description,
		})
		backend, frontend = copyWork(b), copyWork(f)
		return nil
	})
	return backend, frontend, err
}

// GetTarget returns the current target with the live state of its items.
func (s *WorkspaceService) GetTarget() (TargetView, error) {
	var out TargetView
	err := s.Query(func(state *domain.WorkspaceState) error {
		if state.Target == nil {
			return fmt.Errorf("target: %w", ErrNotFound)
		}
		out.Target = *state.Target
		out.ItemIDs = append([]string{}, state.Target.ItemIDs...)
		for _, id := range state.Target.ItemIDs {
			if w := state.FindWork(id); w != nil {
				out.Items = append(out.Items, copyWork(w))
			}
		}
		return nil
	})
	return out, err
}

// CreateWork enqueues a single pending item for forRole.
func (s *WorkspaceService) CreateWork(description string, forRole domain.Role, dep domain.Dependency, ctx map[string]any) (domain.WorkItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.WorkItem{}, fmt.Errorf("description is required")
	}
	if forRole == "" {
		forRole = domain.RoleAny
	}
	if dep == nil {
		dep = domain.NoDependency{}
	}
	var out domain.WorkItem
	err := s.Run("work_create", func(state *domain.WorkspaceState) error {
		item := &domain.WorkItem{
			ID:          newWorkID(),
			Description: description,
			ForRole:     forRole,
			Status:      domain.WorkPending,
			CreatedAt:   s.now(),
			DependsOn:   dep,
			Context:     map[string]any{},
		}
		for k, v := range ctx {
			item.Context[k] = v
		}
		state.Work = append(state.Work, item)
		out = copyWork(item)
		return nil
	})
	return out, err
}

// ListWork returns the full queue in creation order.
func (s *WorkspaceService) ListWork() []domain.WorkItem {
	var out []domain.WorkItem
	_ = s.Query(func(state *domain.WorkspaceState) error {
		out = workSnapshot(state)
		return nil
	})
	return out
}

// PollWork returns the first available pending item for role, or nil.
// Autonomous agents and callers with no registered agent get the item
// assigned on the spot; a registered agent that finds nothing while not
// working is marked waiting.
func (s *WorkspaceService) PollWork(agentID string, role domain.Role) (*domain.WorkItem, error) {
	var out *domain.WorkItem
	err := s.mutate("work_poll", func(state *domain.WorkspaceState) (bool, error) {
		agent := state.Agents[agentID]
		if agent != nil {
			agent.LastSeen = s.now()
			if role == "" {
				role = agent.Role
			}
		}
		if role == "" {
			return false, fmt.Errorf("role is required")
		}

		item := firstAvailable(state, role)
		if item == nil {
			if agent != nil && agent.Status != domain.AgentWorking && agent.Status != domain.AgentWaiting {
				agent.Status = domain.AgentWaiting
				return true, nil
			}
			return false, nil
		}

		changed := false
		switch {
		case agent == nil:
			s.assign(state, item, "unregistered:"+string(role), nil)
			changed = true
		case agent.Autonomous:
			s.assign(state, item, agent.ID, agent)
			changed = true
		}
		c := copyWork(item)
		out = &c
		return changed, nil
	})
	return out, err
}

// ClaimWork assigns a specific pending item to agentID after checking its
// status, role and dependency gate.
func (s *WorkspaceService) ClaimWork(agentID, workID string) (domain.WorkItem, error) {
	var out domain.WorkItem
	err := s.mutate("work_claim", func(state *domain.WorkspaceState) (bool, error) {
		agent, err := s.requireAgent(state, agentID)
		if err != nil {
			return false, err
		}
		item := state.FindWork(workID)
		if item == nil {
			return false, fmt.Errorf("work %s: %w", workID, ErrNotFound)
		}
		if item.Status != domain.WorkPending {
			return false, denied(ReasonNotPending, "work %s is %s", workID, item.Status)
		}
		if !item.ForRole.Matches(agent.Role) {
			return false, denied(ReasonWrongRole, "work %s is for %s, you are %s", workID, item.ForRole, agent.Role)
		}
		if !gateOpen(state, item) {
			dep := domain.RoleBackend
			if d, ok := item.DependsOn.(domain.DependsOnRole); ok {
				dep = d.Role
			}
			return false, denied(ReasonBackendIncomplete, "work %s waits for %s work to complete or hand off", workID, dep)
		}
		s.assign(state, item, agentID, agent)
		out = copyWork(item)
		return true, nil
	})
	return out, err
}

// CompleteWork marks an item completed, returns its owner to idle and hands
// off to the next role in the backend -> frontend -> tester chain.
// handoffContext is merged into the first pending item for that role.
func (s *WorkspaceService) CompleteWork(agentID, workID, result string, handoffContext map[string]any) (CompleteResult, error) {
	var res CompleteResult
	err := s.mutate("work_complete", func(state *domain.WorkspaceState) (bool, error) {
		item := state.FindWork(workID)
		if item == nil {
			return false, fmt.Errorf("work %s: %w", workID, ErrNotFound)
		}
		if item.Status == domain.WorkCompleted {
			return false, denied(ReasonAlreadyCompleted, "work %s is already completed", workID)
		}
		author := agentID
		if a := state.Agents[agentID]; a != nil {
			a.LastSeen = s.now()
		} else if item.AssignedTo != "" {
			author = item.AssignedTo
		}
		if author == "" {
			author = "system"
		}

		releaseOwner(state, item)
		if a := state.Agents[agentID]; a != nil && a.CurrentTask == item.ID {
			a.Status = domain.AgentIdle
			a.CurrentTask = ""
		}
		item.Status = domain.WorkCompleted
		item.CompletedAt = s.now()
		item.Result = result

		desc := "Completed: " + item.Description
		if result != "" {
			desc += " (" + Truncate(result, 200) + ")"
		}
		s.appendIntent(state, domain.Intent{
			AgentID:     author,
			Action:      domain.IntentCompleted,
			Description: desc,
			Target:      item.ID,
		})

		res.Item = copyWork(item)
		next, ok := domain.NextRole(item.ForRole)
		if !ok {
			return true, nil
		}
		res.NextRole = next
		for _, w := range state.Work {
			if w.Status == domain.WorkPending && w.ForRole == next {
				if w.Context == nil {
					w.Context = map[string]any{}
				}
				for k, v := range handoffContext {
					w.Context[k] = v
				}
				res.NextItemID = w.ID
				break
			}
		}
		s.appendIntent(state, domain.Intent{
			AgentID:     author,
			Action:      domain.IntentHandoff,
			Description: fmt.Sprintf("%s work done, over to %s: %s", item.ForRole, next, item.Description),
			Target:      string(next),
		})
		return true, nil
	})
	return res, err
}

// ReclaimStaleWork reverts assigned items older than the stale window to
// pending and clears their assignee. Returns the number reverted; the
// version moves only when that is non-zero.
func (s *WorkspaceService) ReclaimStaleWork() int {
	reverted := 0
	_ = s.mutate("work_reclaim", func(state *domain.WorkspaceState) (bool, error) {
		cutoff := s.now().Add(-s.policy.StaleWorkAfter())
		for _, w := range state.Work {
			if w.Status != domain.WorkAssigned || !w.AssignedAt.Before(cutoff) {
				continue
			}
			w := w
			s.isolate("reclaim work "+w.ID, func() {
				releaseOwner(state, w)
				s.logger.Printf("Sweep: work %s assigned to %s since %s reverted to pending",
					w.ID, w.AssignedTo, w.AssignedAt.Format("15:04:05"))
				w.Status = domain.WorkPending
				w.AssignedTo = ""
				w.AssignedAt = time.Time{}
				reverted++
			})
		}
		return reverted > 0, nil
	})
	return reverted
}
