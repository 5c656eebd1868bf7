package app

import (
	"github.com/jaakkos/cowork/internal/domain"
)

// firstAvailable returns the first pending item (in creation order) that an
// agent playing role may take.
func firstAvailable(state *domain.WorkspaceState, role domain.Role) *domain.WorkItem {
	for _, w := range state.Work {
		if w.Status != domain.WorkPending || !w.ForRole.Matches(role) {
			continue
		}
		if gateOpen(state, w) {
			return w
		}
	}
	return nil
}

// gateOpen reports whether item's dependency allows handing it out: either a
// completed item of the dependency role exists (within the item's target
// group when it has one) or a handoff intent addressed to the item's role was
// recorded.
func gateOpen(state *domain.WorkspaceState, item *domain.WorkItem) bool {
	switch d := item.DependsOn.(type) {
	case nil, domain.NoDependency:
		return true
	case domain.DependsOnRole:
		return dependencyCompleted(state, item, d.Role) || handoffReceived(state, item.ForRole)
	}
	return false
}

func dependencyCompleted(state *domain.WorkspaceState, item *domain.WorkItem, role domain.Role) bool {
	for _, w := range state.Work {
		if w.Status != domain.WorkCompleted || w.ForRole != role {
			continue
		}
		if item.TargetID == "" || w.TargetID == item.TargetID {
			return true
		}
	}
	return false
}

func handoffReceived(state *domain.WorkspaceState, role domain.Role) bool {
	for _, in := range state.Intents {
		if in.Action == domain.IntentHandoff && in.Target == string(role) {
			return true
		}
	}
	return false
}

// assign hands item to agentID and marks the agent working on it.
// agent may be nil for unresolved pollers.
// An agent that holds a live lock on its current task keeps the lock path as
// CurrentTask so lock expiry can still reset it.
func (s *WorkspaceService) assign(state *domain.WorkspaceState, item *domain.WorkItem, agentID string, agent *domain.Agent) {
	item.Status = domain.WorkAssigned
	item.AssignedTo = agentID
	item.AssignedAt = s.now()
	if agent == nil {
		return
	}
	agent.Status = domain.AgentWorking
	if l := state.Locks[agent.CurrentTask]; l != nil && l.Holder == agent.ID {
		return
	}
	agent.CurrentTask = item.ID
}

// releaseOwner returns the agent that owned item to idle.
func releaseOwner(state *domain.WorkspaceState, item *domain.WorkItem) {
	a := state.Agents[item.AssignedTo]
	if a == nil || a.CurrentTask != item.ID {
		return
	}
	a.Status = domain.AgentIdle
	a.CurrentTask = ""
}
