package app

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jaakkos/cowork/internal/domain"
)

// JoinRequest describes an agent entering the workspace.
type JoinRequest struct {
	AgentID    string // optional: reattach to an existing agent
	Name       string
	Client     string
	Role       domain.Role
	Autonomous bool
}

// JoinResult is what a newly joined agent needs to get going.
type JoinResult struct {
	Agent       domain.Agent      `json:"agent"`
	Reattached  bool              `json:"reattached"`
	PendingWork []domain.WorkItem `json:"pending_work"`
	Locks       []LockView        `json:"locks"`
	Agents      []domain.Agent    `json:"agents"`
}

// JoinWorkspace registers an agent, or reattaches to AgentID when it is
// already known, and returns the work pending for its role.
func (s *WorkspaceService) JoinWorkspace(req JoinRequest) (JoinResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return JoinResult{}, fmt.Errorf("name is required")
	}
	role := req.Role
	if role == "" {
		role = domain.RoleAny
	}
	client := req.Client
	if client == "" {
		client = "unknown"
	}

	var res JoinResult
	err := s.Run("agent_join", func(state *domain.WorkspaceState) error {
		now := s.now()
		agent := state.Agents[req.AgentID]
		if agent != nil {
			res.Reattached = true
			agent.DisplayName = name
			agent.ClientKind = client
			agent.Role = role
			agent.Autonomous = req.Autonomous
			if agent.Status == domain.AgentDisconnected {
				agent.Status = domain.AgentIdle
			}
		} else {
			id := req.AgentID
			if id == "" {
				id = uuid.NewString()
			}
			agent = &domain.Agent{
				ID:          id,
				DisplayName: name,
				ClientKind:  client,
				Role:        role,
				Status:      domain.AgentIdle,
				JoinedAt:    now,
				Autonomous:  req.Autonomous,
			}
			state.Agents[id] = agent
		}
		agent.LastSeen = now

		res.Agent = *agent
		res.PendingWork = pendingFor(state, role)
		res.Locks = liveLocks(state, now)
		res.Agents = agentsSnapshot(state)
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	s.logger.Printf("Agent %s (%s, %s) joined as %s", res.Agent.ID, name, client, role)
	return res, nil
}

// LeaveWorkspace removes the agent. Its locks stay until released or reclaimed.
func (s *WorkspaceService) LeaveWorkspace(agentID string) error {
	return s.Run("agent_leave", func(state *domain.WorkspaceState) error {
		if _, ok := state.Agents[agentID]; !ok {
			return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
		}
		delete(state.Agents, agentID)
		return nil
	})
}

// MarkDisconnected flags the agent as disconnected after its transport went away.
func (s *WorkspaceService) MarkDisconnected(agentID string) error {
	return s.mutate("agent_disconnect", func(state *domain.WorkspaceState) (bool, error) {
		agent := state.Agents[agentID]
		if agent == nil {
			return false, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
		}
		if agent.Status == domain.AgentDisconnected {
			return false, nil
		}
		agent.Status = domain.AgentDisconnected
		return true, nil
	})
}

// ListAgents returns all registered agents ordered by join time.
func (s *WorkspaceService) ListAgents() []domain.Agent {
	var out []domain.Agent
	_ = s.Query(func(state *domain.WorkspaceState) error {
		out = agentsSnapshot(state)
		return nil
	})
	return out
}

// Agent returns a copy of the agent with id.
func (s *WorkspaceService) Agent(id string) (domain.Agent, error) {
	var out domain.Agent
	err := s.Query(func(state *domain.WorkspaceState) error {
		a := state.Agents[id]
		if a == nil {
			return fmt.Errorf("agent %s: %w", id, ErrNotFound)
		}
		out = *a
		return nil
	})
	return out, err
}

// requireAgent resolves a registered caller and refreshes its LastSeen.
func (s *WorkspaceService) requireAgent(state *domain.WorkspaceState, agentID string) (*domain.Agent, error) {
	if agentID == "" {
		return nil, ErrNoAgent
	}
	agent := state.Agents[agentID]
	if agent == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNoAgent)
	}
	agent.LastSeen = s.now()
	return agent, nil
}

// PendingWork returns the pending items an agent playing role may take,
// gated or not.
func (s *WorkspaceService) PendingWork(role domain.Role) []domain.WorkItem {
	var out []domain.WorkItem
	_ = s.Query(func(state *domain.WorkspaceState) error {
		out = pendingFor(state, role)
		return nil
	})
	return out
}

func pendingFor(state *domain.WorkspaceState, role domain.Role) []domain.WorkItem {
	out := []domain.WorkItem{}
	for _, w := range state.Work {
		if w.Status == domain.WorkPending && w.ForRole.Matches(role) {
			out = append(out, copyWork(w))
		}
	}
	return out
}
